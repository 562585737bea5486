package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/storage"
)

type fakeFetcher struct {
	calls []string
	pages []api.Page
	err   error
}

func (f *fakeFetcher) fetch(_ context.Context, id string, p api.Page) ([]models.PersistedEvent, error) {
	f.calls = append(f.calls, id)
	f.pages = append(f.pages, p)
	if f.err != nil {
		return nil, f.err
	}
	return []models.PersistedEvent{{ID: id + "-e1", Kind: "ride_assigned"}}, nil
}

func TestLoadFiresOnIdentityChangeOnly(t *testing.T) {
	f := &fakeFetcher{}
	l := NewLoader(storage.SubjectRide, f.fetch, api.Page{Page: 1, Limit: 50}, nil, logging.Discard())
	ctx := context.Background()

	if ev, ok := l.Load(ctx, "r1"); !ok || len(ev) != 1 || ev[0].ID != "r1-e1" {
		t.Fatalf("unexpected first load %+v %v", ev, ok)
	}
	if _, ok := l.Load(ctx, "r1"); ok {
		t.Fatalf("same identity refetched")
	}
	if _, ok := l.Load(ctx, "r2"); !ok {
		t.Fatalf("new identity not fetched")
	}
	if len(f.calls) != 2 || f.pages[0] != (api.Page{Page: 1, Limit: 50}) {
		t.Fatalf("unexpected calls %v pages %v", f.calls, f.pages)
	}
	if l.Current() != "r2" {
		t.Fatalf("current = %q", l.Current())
	}
}

func TestLoadWithoutIdentityNeverFires(t *testing.T) {
	f := &fakeFetcher{}
	l := NewLoader(storage.SubjectDriver, f.fetch, api.Page{Page: 1, Limit: 50}, nil, logging.Discard())
	ctx := context.Background()

	if _, ok := l.Load(ctx, ""); ok {
		t.Fatalf("empty identity reported events")
	}
	if _, ok := l.Refresh(ctx); ok {
		t.Fatalf("refresh without identity reported events")
	}
	if len(f.calls) != 0 {
		t.Fatalf("request fired without identity: %v", f.calls)
	}
}

func TestLoadFailureKeepsPriorPage(t *testing.T) {
	f := &fakeFetcher{}
	l := NewLoader(storage.SubjectRide, f.fetch, api.Page{Page: 1, Limit: 50}, nil, logging.Discard())
	ctx := context.Background()
	l.Load(ctx, "r1")

	f.err = errors.New("boom")
	if ev, ok := l.Refresh(ctx); ok || ev != nil {
		t.Fatalf("failed refresh must not replace the page: %+v", ev)
	}
	if _, ok := l.Load(ctx, "r2"); ok {
		t.Fatalf("failed load without mirror must report nothing")
	}
	// The identity still counts as seen.
	if _, ok := l.Load(ctx, "r2"); ok || len(f.calls) != 3 {
		t.Fatalf("failed identity refetched: %v", f.calls)
	}
}

func TestLoadFallsBackToMirror(t *testing.T) {
	ctx := context.Background()
	mirror := storage.NewMemoryMirror()
	now := time.Now()
	_ = mirror.Append(ctx, storage.Subject{Type: storage.SubjectDriver, ID: "d1"}, models.PersistedEvent{ID: "m1", Kind: "ride_started_for_driver", CreatedAt: &now})

	f := &fakeFetcher{err: errors.New("offline")}
	l := NewLoader(storage.SubjectDriver, f.fetch, api.Page{Page: 1, Limit: 50}, mirror, logging.Discard())
	ev, ok := l.Load(ctx, "d1")
	if !ok || len(ev) != 1 || ev[0].ID != "m1" {
		t.Fatalf("expected mirror page, got %+v %v", ev, ok)
	}

	// Once a live page was shown, a failing refresh leaves it alone.
	f.err = nil
	l.Refresh(ctx)
	f.err = errors.New("offline")
	if _, ok := l.Refresh(ctx); ok {
		t.Fatalf("mirror replaced a live page")
	}
}
