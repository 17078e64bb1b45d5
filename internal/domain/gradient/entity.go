// Package gradient implements the gradient extraction worker (component
// F): a durable FIFO/delayed queue dispatcher that downloads each uploaded
// image, derives a small color palette, and persists a per-image gradient
// record that the gallery domain reads back to enrich its content listing.
package gradient

import "time"

// Status is a per-image gradient record's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Gradient is the derived color payload for one image.
type Gradient struct {
	Palette     []string `json:"palette"`
	Primary     string   `json:"primary"`
	Secondary   string   `json:"secondary"`
	Foreground  string   `json:"foreground"`
	CSSGradient string   `json:"cssGradient"`
	BlurDataURL string   `json:"blurDataUrl"`
}

// Record is the per-image `gradient:<storageKey>` document.
type Record struct {
	Status    Status    `json:"status"`
	Gradient  *Gradient `json:"gradient,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"lastError,omitempty"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Job is the `gradient:job:<id>` payload.
type Job struct {
	JobID       string `json:"jobId"`
	GuildID     string `json:"guildId"`
	GalleryName string `json:"galleryName"`
	StorageKey  string `json:"storageKey"`
	ItemID      string `json:"itemId"`
	Attempts    int    `json:"attempts"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
