package request_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gallerybot/gallery-api/internal/domain/request"
	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

func newTestService(t *testing.T) (*request.Service, kvstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := kvstore.New(client)
	repo := request.NewRepository(kv, 30*24*time.Hour)
	return request.NewService(repo), kv
}

func TestCreateDefaultsToOpen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "need a new banner"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != request.StatusOpen {
		t.Fatalf("got status %s, want open", req.Status)
	}
	if req.CreatedAt != req.UpdatedAt {
		t.Fatalf("expected createdAt == updatedAt on a fresh request")
	}
}

func TestValidTransitionsFollowGraph(t *testing.T) {
	cases := []struct {
		from, to request.Status
		want     bool
	}{
		{request.StatusOpen, request.StatusApproved, true},
		{request.StatusOpen, request.StatusDenied, true},
		{request.StatusOpen, request.StatusCancelled, true},
		{request.StatusOpen, request.StatusClosed, false},
		{request.StatusApproved, request.StatusClosed, true},
		{request.StatusClosed, request.StatusOpen, true},
		{request.StatusClosed, request.StatusApproved, false},
		{request.StatusDenied, request.StatusOpen, false},
	}
	for _, c := range cases {
		got := request.IsValidTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionClosesAndReopens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := svc.Transition(ctx, "g1", req.ID, request.StatusApproved, "mod1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != request.StatusApproved {
		t.Fatalf("got status %s, want approved", approved.Status)
	}

	closed, err := svc.Transition(ctx, "g1", req.ID, request.StatusClosed, "mod1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ClosedAt == nil || closed.ClosedBy == nil || *closed.ClosedBy != "mod1" {
		t.Fatalf("expected closedAt/closedBy to be set, got %+v", closed)
	}

	reopened, err := svc.Transition(ctx, "g1", req.ID, request.StatusOpen, "mod1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ClosedAt != nil || reopened.ClosedBy != nil {
		t.Fatalf("expected closedAt/closedBy cleared on reopen, got %+v", reopened)
	}
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Transition(ctx, "g1", req.ID, request.StatusClosed, "mod1")
	if err == nil {
		t.Fatalf("expected an error transitioning open -> closed directly")
	}
	if !apperror.Is(err, apperror.Conflict) {
		t.Fatalf("expected a conflict apperror, got %v", err)
	}
}

func TestListPaginatesMonotonically(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	const total = 25
	for i := 0; i < total; i++ {
		if _, err := svc.Create(ctx, request.CreateInput{
			GuildID: "g1",
			UserID:  "u1",
			Title:   fmt.Sprintf("request %d", i),
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	var cursor *string
	pages := 0
	for {
		page, err := svc.List(ctx, request.ListFilter{GuildIDs: []string{"g1"}, Limit: 10, Cursor: cursor})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page.Items) == 0 && pages > 0 {
			break
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("id %s returned in more than one page", item.ID)
			}
			seen[item.ID] = true
		}
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
		if pages > total {
			t.Fatalf("pagination did not converge")
		}
	}

	if len(seen) != total {
		t.Fatalf("got %d total items across pages, want %d", len(seen), total)
	}
}

func TestListUnknownCursorFallsBackToFirstPage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	bogus := "does-not-exist"
	page, err := svc.List(ctx, request.ListFilter{GuildIDs: []string{"g1"}, Limit: 10, Cursor: &bogus})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("got %d items, want 3 (fallback to first page)", len(page.Items))
	}
}

func TestCommentsAreOrdered(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AddComment(ctx, "g1", req.ID, "u1", "first"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if _, err := svc.AddComment(ctx, "g1", req.ID, "u2", "second"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	comments, err := svc.ListComments(ctx, "g1", req.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 || comments[0].Content != "first" || comments[1].Content != "second" {
		t.Fatalf("got comments %+v, want ordered [first, second]", comments)
	}
}

func TestConcurrentTransitionsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const racers = 8
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			_, err := svc.Transition(ctx, "g1", req.ID, request.StatusApproved, "mod1")
			results <- err
		}()
	}

	successes := 0
	for i := 0; i < racers; i++ {
		if err := <-results; err == nil {
			successes++
		} else if !apperror.Is(err, apperror.Conflict) {
			t.Fatalf("unexpected error from racing transition: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("got %d successful transitions, want exactly 1", successes)
	}

	final, err := svc.Get(ctx, "g1", req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != request.StatusApproved {
		t.Fatalf("got final status %s, want approved", final.Status)
	}
}

func TestDeleteRemovesRequestAndComments(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	req, err := svc.Create(ctx, request.CreateInput{GuildID: "g1", UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddComment(ctx, "g1", req.ID, "u1", "hello"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	if err := svc.Delete(ctx, "g1", req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.Get(ctx, "g1", req.ID); err == nil {
		t.Fatalf("expected request to be gone after delete")
	}

	page, err := svc.List(ctx, request.ListFilter{GuildIDs: []string{"g1"}, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no items after delete, got %d", len(page.Items))
	}
}
