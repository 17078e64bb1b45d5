package gallery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

const expiriesKey = "galleries:expiries:v2"

// Repository is the KV-backed storage layer for gallery metadata: a
// per-guild set of names, one JSON meta blob per gallery, and a shared
// expiry sorted set keyed by member string.
type Repository struct {
	kv kvstore.Store
}

// NewRepository builds a Repository over the given KV store.
func NewRepository(kv kvstore.Store) *Repository {
	return &Repository{kv: kv}
}

func listKey(guildID string) string {
	return fmt.Sprintf("guild:%s:galleries", guildID)
}

func metaKey(guildID, name string) string {
	return fmt.Sprintf("guild:%s:gallery:%s:meta", guildID, name)
}

func member(guildID, name string) string {
	return fmt.Sprintf("guild:%s:gallery:%s", guildID, name)
}

// Names returns every gallery name currently indexed for the guild,
// expired or not; callers filter by expiry themselves.
func (r *Repository) Names(ctx context.Context, guildID string) ([]string, error) {
	return r.kv.SMembers(ctx, listKey(guildID))
}

// GetMetaRaw fetches the raw JSON meta blob for one gallery, or
// kvstore.ErrNotFound if absent.
func (r *Repository) GetMetaRaw(ctx context.Context, guildID, name string) (string, error) {
	return r.kv.Get(ctx, metaKey(guildID, name))
}

// MGetMeta batch-fetches meta blobs for all given names in one round trip,
// preserving index alignment with names (nil entry = missing key).
func (r *Repository) MGetMeta(ctx context.Context, guildID string, names []string) ([]*string, error) {
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = metaKey(guildID, n)
	}
	return r.kv.MGet(ctx, keys...)
}

// Create pipelines the three writes create() needs atomically: index add,
// meta write, expiry sorted-set add.
func (r *Repository) Create(ctx context.Context, g *Gallery) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal gallery meta: %w", err)
	}

	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.SAdd(listKey(g.GuildID), g.Name)
		p.Set(metaKey(g.GuildID, g.Name), string(raw))
		p.ZAdd(expiriesKey, kvstore.Z{Score: float64(g.ExpiresAt), Member: member(g.GuildID, g.Name)})
	})
}

// Rename pipelines the index swap: remove the old name/meta/expiry member,
// add the new ones, preserving the existing expiresAt score.
func (r *Repository) Rename(ctx context.Context, guildID, oldName string, updated *Gallery) error {
	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal gallery meta: %w", err)
	}

	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.SRem(listKey(guildID), oldName)
		p.SAdd(listKey(guildID), updated.Name)
		p.Del(metaKey(guildID, oldName))
		p.Set(metaKey(guildID, updated.Name), string(raw))
		p.ZRem(expiriesKey, member(guildID, oldName))
		p.ZAdd(expiriesKey, kvstore.Z{Score: float64(updated.ExpiresAt), Member: member(guildID, updated.Name)})
	})
}

// Remove pipelines the index teardown for one gallery. Callers are
// responsible for emptying the object-store folder separately.
func (r *Repository) Remove(ctx context.Context, guildID, name string) error {
	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.SRem(listKey(guildID), name)
		p.Del(metaKey(guildID, name))
		p.ZRem(expiriesKey, member(guildID, name))
	})
}

// SweepExpired removes index entries for galleries whose expiry has
// passed (or whose meta is missing/malformed), in one pipeline.
func (r *Repository) SweepExpired(ctx context.Context, guildID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		for _, n := range names {
			p.SRem(listKey(guildID), n)
			p.Del(metaKey(guildID, n))
			p.ZRem(expiriesKey, member(guildID, n))
		}
	})
}

// PutMeta overwrites the meta blob for an existing gallery, used by the
// counter mutators and Sync.
func (r *Repository) PutMeta(ctx context.Context, g *Gallery) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal gallery meta: %w", err)
	}
	return r.kv.Set(ctx, metaKey(g.GuildID, g.Name), string(raw))
}
