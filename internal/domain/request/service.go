package request

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

const maxTransitionRetries = 5

// Service orchestrates requests and comments on top of Repository: create,
// lookup, CAS status transitions, filtered/paginated listing and delete.
type Service struct {
	repo *Repository
}

// NewService builds a Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput is the payload for opening a new request.
type CreateInput struct {
	GuildID     string
	UserID      string
	GalleryID   string
	Title       string
	Description string
}

// Create opens a new request in the open state.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if in.GuildID == "" || in.UserID == "" {
		return nil, errInvalidInput("guildId and userId are required")
	}
	if in.Title == "" {
		return nil, errInvalidInput("title is required")
	}

	now := nowMs()
	req := &Request{
		ID:          uuid.NewString(),
		GuildID:     in.GuildID,
		UserID:      in.UserID,
		GalleryID:   in.GalleryID,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get fetches a request by id, scoped to the guild it belongs to.
func (s *Service) Get(ctx context.Context, guildID, id string) (*Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return nil, errNotFound("request not found")
		}
		return nil, err
	}
	if req.GuildID != guildID {
		return nil, errNotFound("request not found")
	}
	return req, nil
}

// Transition applies a status change using optimistic WATCH/MULTI/EXEC,
// retrying on concurrent-modification aborts; after maxTransitionRetries
// attempts in total have aborted it surfaces a conflict.
func (s *Service) Transition(ctx context.Context, guildID, id string, to Status, actorUserID string) (*Request, error) {
	var result *Request

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		err := s.repo.kv.RunTx(ctx, []string{requestKey(id)}, func(tx kvstore.Tx) error {
			raw, err := tx.Get(ctx, requestKey(id))
			if err != nil {
				return err
			}
			var req Request
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				return fmt.Errorf("parse request: %w", err)
			}
			if req.GuildID != guildID {
				return errNotFound("request not found")
			}
			if !IsValidTransition(req.Status, to) {
				return errConflict("invalid status transition")
			}

			from := req.Status
			now := nowMs()
			req.Status = to
			req.UpdatedAt = now
			switch to {
			case StatusClosed:
				req.ClosedAt = &now
				actor := actorUserID
				req.ClosedBy = &actor
			case StatusOpen:
				req.ClosedAt = nil
				req.ClosedBy = nil
			}

			raw2, err := json.Marshal(&req)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			tx.Queue(func(p kvstore.Pipeliner) {
				p.SetEX(requestKey(req.ID), string(raw2), s.repo.ttl)
				MoveStatusIndex(p, req.ID, from, to, now)
			})
			result = &req
			return nil
		})

		if err == nil {
			return result, nil
		}
		if err != kvstore.ErrAborted {
			return nil, err
		}
	}

	return nil, errConflict("request was modified concurrently, retry exhausted")
}

// ListFilter narrows a listing to the given guilds, optionally further by
// user and status, with cursor-based pagination.
type ListFilter struct {
	GuildIDs []string
	UserID   *string
	Status   *string
	Cursor   *string
	Limit    int
}

// ListResult is one page of requests plus the cursor to request the next.
type ListResult struct {
	Items      []*Request
	NextCursor *string
	HasMore    bool
}

// List computes the candidate id set, orders it by creation time, and
// slices out the page starting after Cursor.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	ids, err := s.repo.CandidateIDs(ctx, f.GuildIDs, f.UserID, f.Status)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &ListResult{}, nil
	}

	scores, err := s.repo.ScoresByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    string
		score float64
	}
	ordered := make([]scored, 0, len(ids))
	for i, id := range ids {
		if scores[i] == nil {
			continue // orphan: indexed but missing from the ordering set
		}
		ordered = append(ordered, scored{id: id, score: *scores[i]})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score < ordered[j].score
		}
		return ordered[i].id < ordered[j].id
	})

	start := 0
	if f.Cursor != nil {
		for i, o := range ordered {
			if o.id == *f.Cursor {
				start = i + 1
				break
			}
		}
		// cursor not found: fall back to the first page (start stays 0)
	}

	end := start + f.Limit
	hasMore := end < len(ordered)
	if end > len(ordered) {
		end = len(ordered)
	}
	page := ordered[start:end]

	items := make([]*Request, 0, len(page))
	for _, o := range page {
		req, err := s.repo.Get(ctx, o.id)
		if err != nil {
			if err == kvstore.ErrNotFound {
				continue
			}
			return nil, err
		}
		items = append(items, req)
	}

	result := &ListResult{Items: items, HasMore: hasMore}
	if hasMore && len(page) > 0 {
		last := page[len(page)-1].id
		result.NextCursor = &last
	}
	return result, nil
}

// Delete removes a request and all of its comments and index rows.
func (s *Service) Delete(ctx context.Context, guildID, id string) error {
	req, err := s.Get(ctx, guildID, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, req)
}

// AddComment appends a comment to an existing request.
func (s *Service) AddComment(ctx context.Context, guildID, requestID, userID, content string) (*Comment, error) {
	if content == "" {
		return nil, errInvalidInput("content is required")
	}
	if _, err := s.Get(ctx, guildID, requestID); err != nil {
		return nil, err
	}
	c := &Comment{
		ID:        uuid.NewString(),
		RequestID: requestID,
		UserID:    userID,
		Content:   content,
		CreatedAt: nowMs(),
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns every comment on a request, oldest first.
func (s *Service) ListComments(ctx context.Context, guildID, requestID string) ([]*Comment, error) {
	if _, err := s.Get(ctx, guildID, requestID); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, requestID)
}
