package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/objectkey"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
	"github.com/gallerybot/gallery-api/internal/pkg/slug"
)

// Service implements the gallery metadata operations: create/list/get/
// rename/remove, item counters, and enriched content listing. It owns
// both the KV-backed index (Repository) and the object-store folder each
// gallery maps to.
type Service struct {
	repo      *Repository
	objects   objectstore.Store
	gradients GradientReader
}

// NewService builds a Service over repo and objects. SetGradientReader is
// called separately once the gradient worker's record store exists, to
// avoid a construction-order dependency between the two domains.
func NewService(repo *Repository, objects objectstore.Store) *Service {
	return &Service{repo: repo, objects: objects}
}

// SetGradientReader wires the gradient domain's record store in so
// Contents can enrich items. Galleries function without it; items simply
// omit the gradient field.
func (s *Service) SetGradientReader(r GradientReader) {
	s.gradients = r
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Create validates input, enforces the name/slug uniqueness predicate
// adopted in DESIGN.md's Open Question decisions, writes the index
// atomically, and best-effort creates the folder marker.
func (s *Service) Create(ctx context.Context, guildID, userID string, req CreateRequest) (*Gallery, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errInvalidInput("name must not be empty")
	}
	if req.TTLWeeks < 1 {
		return nil, errInvalidInput("ttlWeeks must be >= 1")
	}

	existingNames, err := s.repo.Names(ctx, guildID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "list existing galleries", err)
	}

	newSlug := slug.Of(name)
	for _, existing := range existingNames {
		if strings.EqualFold(existing, name) || slug.Of(existing) == newSlug {
			return nil, errConflict(fmt.Sprintf("gallery %q already exists", name))
		}
	}

	now := nowMs()
	g := &Gallery{
		Name:       name,
		FolderName: newSlug,
		GuildID:    guildID,
		CreatedAt:  now,
		ExpiresAt:  ExpiresAt(now, req.TTLWeeks),
		TTLWeeks:   req.TTLWeeks,
		CreatedBy:  userID,
		TotalItems: 0,
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "create gallery index entry", err)
	}

	if err := s.objects.PutFolderMarker(ctx, objectkey.FolderMarker(guildID, newSlug)); err != nil {
		log.Warn().Err(err).Str("guildId", guildID).Str("gallery", name).
			Msg("folder marker creation failed, will be created on first upload")
	}

	return g, nil
}

// List returns every live gallery for the guild, sweeping expired or
// malformed entries from the index as it goes. This is the sole
// expiry-reaper; no background job performs this independently.
func (s *Service) List(ctx context.Context, guildID string) ([]*Gallery, error) {
	names, err := s.repo.Names(ctx, guildID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "list gallery names", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	blobs, err := s.repo.MGetMeta(ctx, guildID, names)
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "batch fetch gallery meta", err)
	}

	now := nowMs()
	var active []*Gallery
	var expired []string

	for i, name := range names {
		blob := blobs[i]
		if blob == nil {
			expired = append(expired, name)
			continue
		}
		var g Gallery
		if err := json.Unmarshal([]byte(*blob), &g); err != nil {
			expired = append(expired, name)
			continue
		}
		if g.ExpiresAt <= now {
			expired = append(expired, name)
			continue
		}
		active = append(active, &g)
	}

	if len(expired) > 0 {
		if err := s.repo.SweepExpired(ctx, guildID, expired); err != nil {
			log.Warn().Err(err).Str("guildId", guildID).Msg("failed to sweep expired galleries")
		}
	}

	return active, nil
}

// Get resolves a single gallery, returning NotFound if it's missing,
// malformed, or has expired (expired entries read as NotFound; the next
// List call will reap the index entry).
func (s *Service) Get(ctx context.Context, guildID, name string) (*Gallery, error) {
	raw, err := s.repo.GetMetaRaw(ctx, guildID, name)
	if err == kvstore.ErrNotFound {
		return nil, errNotFound(fmt.Sprintf("gallery %q not found", name))
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "read gallery meta", err)
	}

	var g Gallery
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, errNotFound(fmt.Sprintf("gallery %q not found", name))
	}
	if g.ExpiresAt <= nowMs() {
		return nil, errNotFound(fmt.Sprintf("gallery %q not found", name))
	}
	return &g, nil
}

// Rename swaps the KV index first, then best-effort moves the underlying
// objects. Per the adopted Open Question decision, a crash between the
// index swap and the object move is tolerated: the index then points at a
// partially (or entirely) un-moved prefix. Sync recomputes totalItems from
// what the new prefix holds; it does not move objects left under the old one.
func (s *Service) Rename(ctx context.Context, guildID, oldName string, req RenameRequest) (*Gallery, error) {
	newName := strings.TrimSpace(req.NewName)
	if newName == "" {
		return nil, errInvalidInput("newName must not be empty")
	}

	existing, err := s.Get(ctx, guildID, oldName)
	if err != nil {
		return nil, err
	}

	names, err := s.repo.Names(ctx, guildID)
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "list existing galleries", err)
	}

	newSlug := slug.Of(newName)
	for _, other := range names {
		if other == oldName {
			continue
		}
		if strings.EqualFold(other, newName) || slug.Of(other) == newSlug {
			return nil, errConflict(fmt.Sprintf("gallery %q already exists", newName))
		}
	}

	oldSlug := existing.FolderName
	updated := *existing
	updated.Name = newName
	updated.FolderName = newSlug

	if err := s.repo.Rename(ctx, guildID, oldName, &updated); err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "rename gallery index entry", err)
	}

	if err := s.moveFolder(ctx, guildID, oldSlug, newSlug); err != nil {
		log.Warn().Err(err).Str("guildId", guildID).Str("from", oldSlug).Str("to", newSlug).
			Msg("object move after rename failed, objects may remain under the old prefix")
	}

	return &updated, nil
}

// moveFolder copies every object under the old prefix to the new one, then
// deletes the old ones. Both copy and delete are idempotent against
// partial re-runs: copying identical bytes is a no-op and deleting an
// already-missing key is ignored by the object store.
func (s *Service) moveFolder(ctx context.Context, guildID, oldSlug, newSlug string) error {
	oldPrefix := fmt.Sprintf("%s/%s/", guildID, oldSlug)
	newPrefix := fmt.Sprintf("%s/%s/", guildID, newSlug)

	lister := s.objects.ListPrefix(ctx, oldPrefix)
	var moved []string
	for {
		page, done, err := lister.Next(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page {
			dst := newPrefix + strings.TrimPrefix(obj.Key, oldPrefix)
			if err := s.objects.CopyObject(ctx, obj.Key, dst); err != nil {
				return err
			}
			moved = append(moved, obj.Key)
		}
		if done {
			break
		}
	}

	if len(moved) > 0 {
		if err := s.objects.DeleteBatch(ctx, moved); err != nil {
			return err
		}
	}
	return nil
}

// Remove tears down a gallery's index entry and empties its object-store
// folder, including the folder marker itself.
func (s *Service) Remove(ctx context.Context, guildID, name string) error {
	g, err := s.Get(ctx, guildID, name)
	if err != nil {
		return err
	}

	if err := s.repo.Remove(ctx, guildID, name); err != nil {
		return apperror.Wrap(apperror.Fatal, "remove gallery index entry", err)
	}

	prefix := fmt.Sprintf("%s/%s/", guildID, g.FolderName)
	lister := s.objects.ListPrefix(ctx, prefix)
	var keys []string
	for {
		page, done, err := lister.Next(ctx)
		if err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("failed to list gallery folder for removal")
			break
		}
		for _, obj := range page {
			keys = append(keys, obj.Key)
		}
		if done {
			break
		}
	}
	if len(keys) > 0 {
		if err := s.objects.DeleteBatch(ctx, keys); err != nil {
			log.Warn().Err(err).Str("prefix", prefix).Msg("failed to delete gallery objects")
		}
	}
	if err := s.objects.DeleteObject(ctx, prefix); err != nil {
		log.Warn().Err(err).Str("prefix", prefix).Msg("failed to delete gallery folder marker")
	}

	return nil
}

// IncrementItemCount bumps totalItems by delta (read-modify-write; callers
// tolerate the resulting race because the object store is canonical and
// Sync reconciles drift).
func (s *Service) IncrementItemCount(ctx context.Context, guildID, name string, delta int64) error {
	g, err := s.Get(ctx, guildID, name)
	if err != nil {
		return err
	}
	g.TotalItems += delta
	if g.TotalItems < 0 {
		g.TotalItems = 0
	}
	if err := s.repo.PutMeta(ctx, g); err != nil {
		return apperror.Wrap(apperror.Fatal, "update gallery item count", err)
	}
	return nil
}

// DecrementItemCount decrements totalItems by delta, clamping at 0.
func (s *Service) DecrementItemCount(ctx context.Context, guildID, name string, delta int64) error {
	return s.IncrementItemCount(ctx, guildID, name, -delta)
}

var macForkPrefix = regexp.MustCompile(`^\d+-\d+-`)

func isMacResourceFork(key string) bool {
	if strings.Contains(key, "__MACOSX/") {
		return true
	}
	base := key
	if idx := strings.LastIndex(key, "/"); idx != -1 {
		base = key[idx+1:]
	}
	if strings.HasPrefix(base, "._") {
		return true
	}
	stripped := macForkPrefix.ReplaceAllString(base, "")
	return strings.HasPrefix(stripped, "._")
}

// Contents lists a gallery's uploaded items, filtering out folder markers,
// empty placeholders and Apple resource-fork artifacts, and enriching each
// item with its gradient record when one exists.
func (s *Service) Contents(ctx context.Context, guildID, name string) ([]Item, error) {
	g, err := s.Get(ctx, guildID, name)
	if err != nil {
		return nil, err
	}

	uploadsPrefix := fmt.Sprintf("%s/%s/uploads/", guildID, g.FolderName)
	objects, err := s.listAll(ctx, uploadsPrefix)
	if err != nil {
		return nil, apperror.Wrap(apperror.Fatal, "list gallery uploads", err)
	}
	if len(objects) == 0 {
		fallbackPrefix := fmt.Sprintf("%s/%s/", guildID, g.FolderName)
		objects, err = s.listAll(ctx, fallbackPrefix)
		if err != nil {
			return nil, apperror.Wrap(apperror.Fatal, "list gallery folder", err)
		}
	}

	var keys []string
	var filtered []objectstore.Object
	for _, obj := range objects {
		if obj.Size <= 0 || strings.HasSuffix(obj.Key, "/") || isMacResourceFork(obj.Key) {
			continue
		}
		filtered = append(filtered, obj)
		keys = append(keys, obj.Key)
	}

	var gradientByKey map[string]*Gradient
	if s.gradients != nil && len(keys) > 0 {
		gradientByKey, err = s.gradients.BatchGet(ctx, keys)
		if err != nil {
			log.Warn().Err(err).Msg("failed to batch-fetch gradient records")
		}
	}

	items := make([]Item, 0, len(filtered))
	for _, obj := range filtered {
		item := Item{Key: obj.Key, Size: obj.Size}
		if gradientByKey != nil {
			if g, ok := gradientByKey[obj.Key]; ok {
				item.Gradient = g
			}
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *Service) listAll(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	lister := s.objects.ListPrefix(ctx, prefix)
	var all []objectstore.Object
	for {
		page, done, err := lister.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if done {
			break
		}
	}
	return all, nil
}

// GradientReader is the read-side contract Contents uses to enrich items
// with gradient records, implemented by the gradient domain package.
// completed → attach the record; failed → attach an explicit nil
// (present-but-null); pending/processing/missing → omit entirely.
type GradientReader interface {
	BatchGet(ctx context.Context, storageKeys []string) (map[string]*Gradient, error)
}

// Sync recomputes totalItems for every live gallery in a guild directly
// from the object store, correcting any drift the read-modify-write
// counters accumulated under concurrent updates or a crashed rename.
func (s *Service) Sync(ctx context.Context, guildID string) error {
	galleries, err := s.List(ctx, guildID)
	if err != nil {
		return err
	}

	for _, g := range galleries {
		prefix := fmt.Sprintf("%s/%s/uploads/", guildID, g.FolderName)
		objects, err := s.listAll(ctx, prefix)
		if err != nil {
			log.Warn().Err(err).Str("gallery", g.Name).Msg("sync: failed to list objects")
			continue
		}

		var count int64
		for _, obj := range objects {
			if obj.Size > 0 && !strings.HasSuffix(obj.Key, "/") && !isMacResourceFork(obj.Key) {
				count++
			}
		}

		if count != g.TotalItems {
			g.TotalItems = count
			if err := s.repo.PutMeta(ctx, g); err != nil {
				log.Warn().Err(err).Str("gallery", g.Name).Msg("sync: failed to persist recomputed item count")
			}
		}
	}

	return nil
}
