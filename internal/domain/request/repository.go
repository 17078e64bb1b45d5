package request

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

const (
	createdZKey = "request:created"
	updatedZKey = "request:updated"
)

// Repository is the KV-backed persistence for requests, their comments,
// and the guild/user/status/sorted-set indexes.
type Repository struct {
	kv  kvstore.Store
	ttl time.Duration
}

// NewRepository builds a Repository with the given record TTL.
func NewRepository(kv kvstore.Store, ttl time.Duration) *Repository {
	return &Repository{kv: kv, ttl: ttl}
}

func requestKey(id string) string      { return fmt.Sprintf("request:%s", id) }
func guildSetKey(guild string) string  { return fmt.Sprintf("request:guild:%s", guild) }
func userSetKey(user string) string    { return fmt.Sprintf("request:user:%s", user) }
func statusSetKey(s Status) string     { return fmt.Sprintf("request:status:%s", s) }
func commentsZKey(reqID string) string { return fmt.Sprintf("request:comments:%s", reqID) }
func commentKey(id string) string      { return fmt.Sprintf("request:comment:%s", id) }

// Create persists req and its guild/user/status/sorted-set index rows in
// one atomic pipeline.
func (r *Repository) Create(ctx context.Context, req *Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	score := float64(req.CreatedAt)

	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.SetEX(requestKey(req.ID), string(raw), r.ttl)
		p.SAdd(guildSetKey(req.GuildID), req.ID)
		p.SAdd(userSetKey(req.UserID), req.ID)
		p.SAdd(statusSetKey(req.Status), req.ID)
		p.ZAdd(createdZKey, kvstore.Z{Score: score, Member: req.ID})
		p.ZAdd(updatedZKey, kvstore.Z{Score: score, Member: req.ID})
	})
}

// Get fetches a request record, or kvstore.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*Request, error) {
	raw, err := r.kv.Get(ctx, requestKey(id))
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	return &req, nil
}

// Put overwrites a request record, refreshing its TTL, without touching
// any index (used by CAS status transitions, which manage index moves
// themselves).
func (r *Repository) Put(ctx context.Context, req *Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return r.kv.SetEX(ctx, requestKey(req.ID), string(raw), r.ttl)
}

// MoveStatusIndex removes id from from's status set and adds it to to's,
// and bumps the updated sorted set's score, all in one pipeline. Called
// only from within a successful CAS transaction's queued writes.
func MoveStatusIndex(p kvstore.Pipeliner, id string, from, to Status, updatedAtMs int64) {
	p.SRem(statusSetKey(from), id)
	p.SAdd(statusSetKey(to), id)
	p.ZAdd(updatedZKey, kvstore.Z{Score: float64(updatedAtMs), Member: id})
}

// CandidateIDs computes the filtered id set: a single guild's set alone,
// the intersection with an optional user/status filter, or — for multiple
// guilds — a transient SUNION of guild sets intersected with the optional
// filters.
func (r *Repository) CandidateIDs(ctx context.Context, guildIDs []string, userID, status *string) ([]string, error) {
	if len(guildIDs) == 0 {
		return nil, nil
	}

	guildKey := guildSetKey(guildIDs[0])
	if len(guildIDs) > 1 {
		keys := make([]string, len(guildIDs))
		for i, g := range guildIDs {
			keys[i] = guildSetKey(g)
		}
		transient := fmt.Sprintf("request:guild-union:%d", time.Now().UnixNano())
		if err := r.kv.SUnionStore(ctx, transient, 30*time.Second, keys...); err != nil {
			return nil, err
		}
		guildKey = transient
	}

	keys := []string{guildKey}
	if userID != nil {
		keys = append(keys, userSetKey(*userID))
	}
	if status != nil {
		keys = append(keys, statusSetKey(Status(*status)))
	}

	if len(keys) == 1 {
		return r.kv.SMembers(ctx, keys[0])
	}
	return r.kv.SInter(ctx, keys...)
}

// ScoresByID fetches each id's ordering score from request:created,
// one ZSCORE per id since ZMScore cannot distinguish a genuine zero score
// from a missing member. A nil entry means the id is an orphan (present in
// an index but the ordering set has no score for it) and must be silently
// dropped by the caller.
func (r *Repository) ScoresByID(ctx context.Context, ids []string) ([]*float64, error) {
	out := make([]*float64, len(ids))
	for i, id := range ids {
		score, err := r.kv.ZScore(ctx, createdZKey, id)
		if err != nil {
			if err == kvstore.ErrNotFound {
				continue
			}
			return nil, err
		}
		v := score
		out[i] = &v
	}
	return out, nil
}

// CreateComment appends a comment and indexes it under the request's
// comment sorted set, keyed by creation time.
func (r *Repository) CreateComment(ctx context.Context, c *Comment) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.SetEX(commentKey(c.ID), string(raw), r.ttl)
		p.ZAdd(commentsZKey(c.RequestID), kvstore.Z{Score: float64(c.CreatedAt), Member: c.ID})
	})
}

// ListComments returns a request's comments ordered by creation time.
func (r *Repository) ListComments(ctx context.Context, requestID string) ([]*Comment, error) {
	ids, err := r.kv.ZRange(ctx, commentsZKey(requestID), 0, -1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = commentKey(id)
	}
	raw, err := r.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	var comments []*Comment
	for _, v := range raw {
		if v == nil {
			continue
		}
		var c Comment
		if err := json.Unmarshal([]byte(*v), &c); err != nil {
			continue
		}
		comments = append(comments, &c)
	}
	return comments, nil
}

// Delete removes a request, its comments, and every index row and
// sorted-set entry referencing it, in one pipeline.
func (r *Repository) Delete(ctx context.Context, req *Request) error {
	commentIDs, err := r.kv.ZRange(ctx, commentsZKey(req.ID), 0, -1)
	if err != nil {
		return err
	}

	return r.kv.Pipeline(ctx, func(p kvstore.Pipeliner) {
		p.Del(requestKey(req.ID))
		p.SRem(guildSetKey(req.GuildID), req.ID)
		p.SRem(userSetKey(req.UserID), req.ID)
		p.SRem(statusSetKey(req.Status), req.ID)
		p.ZRem(createdZKey, req.ID)
		p.ZRem(updatedZKey, req.ID)
		p.Del(commentsZKey(req.ID))
		for _, cid := range commentIDs {
			p.Del(commentKey(cid))
		}
	})
}
