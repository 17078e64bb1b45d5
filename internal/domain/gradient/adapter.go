package gradient

import (
	"context"

	"github.com/gallerybot/gallery-api/internal/domain/gallery"
)

// BatchGet implements gallery.GradientReader. Completed records attach
// their gradient, failed records attach an explicit nil (present-but-null,
// signalling "we tried and gave up"), and pending/processing/missing
// records are left out of the map. gallery.Service.Contents leaves
// Item.Gradient nil in both of the last two cases, so the listing JSON
// shows "gradient": null for a failed record and for a pending or missing
// one alike.
func (r *Repository) BatchGet(ctx context.Context, storageKeys []string) (map[string]*gallery.Gradient, error) {
	records, err := r.BatchGetRecords(ctx, storageKeys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*gallery.Gradient, len(records))
	for key, rec := range records {
		switch rec.Status {
		case StatusCompleted:
			if rec.Gradient == nil {
				continue
			}
			out[key] = &gallery.Gradient{
				Palette:     rec.Gradient.Palette,
				Primary:     rec.Gradient.Primary,
				Secondary:   rec.Gradient.Secondary,
				Foreground:  rec.Gradient.Foreground,
				CSSGradient: rec.Gradient.CSSGradient,
				BlurDataURL: rec.Gradient.BlurDataURL,
			}
		case StatusFailed:
			out[key] = nil
		}
	}
	return out, nil
}
