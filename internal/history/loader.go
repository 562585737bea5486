package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
	"github.com/example/ride-sync/internal/storage"
)

// Fetcher reads one page of a subject's event log from the backend.
type Fetcher func(ctx context.Context, id string, p api.Page) ([]models.PersistedEvent, error)

// Loader fetches a subject's event history when the subject identity
// changes. Failures are logged and reported as "nothing to apply" so the
// caller keeps whatever page it already shows; when nothing has been loaded
// for the identity yet, the optional mirror is consulted instead.
type Loader struct {
	subject string
	fetch   Fetcher
	page    api.Page
	mirror  storage.Mirror
	logger  *slog.Logger

	mu     sync.Mutex
	lastID string
	loaded bool
}

// NewLoader builds a loader for subject (storage.SubjectRide or
// storage.SubjectDriver). mirror may be nil.
func NewLoader(subject string, fetch Fetcher, page api.Page, mirror storage.Mirror, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		subject: subject,
		fetch:   fetch,
		page:    page,
		mirror:  mirror,
		logger:  logger.With("component", "history", "subject", subject),
	}
}

// Load fetches history for id when id differs from the last identity seen.
// The bool reports whether the returned events should replace the view.
// An empty id never fires a request and forgets the last identity.
func (l *Loader) Load(ctx context.Context, id string) ([]models.PersistedEvent, bool) {
	l.mu.Lock()
	if id == "" {
		l.lastID, l.loaded = "", false
		l.mu.Unlock()
		return nil, false
	}
	if id == l.lastID {
		l.mu.Unlock()
		return nil, false
	}
	l.lastID, l.loaded = id, false
	l.mu.Unlock()

	return l.run(ctx, id, false)
}

// Refresh refetches the current identity regardless of whether it changed.
func (l *Loader) Refresh(ctx context.Context) ([]models.PersistedEvent, bool) {
	l.mu.Lock()
	id, loaded := l.lastID, l.loaded
	l.mu.Unlock()
	if id == "" {
		return nil, false
	}
	return l.run(ctx, id, loaded)
}

// Current returns the identity the loader last fired for.
func (l *Loader) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

func (l *Loader) run(ctx context.Context, id string, displayed bool) ([]models.PersistedEvent, bool) {
	events, err := l.fetch(ctx, id, l.page)
	if err == nil {
		observability.HistoryFetches.WithLabelValues(l.subject, "ok").Inc()
		l.markLoaded(id)
		if events == nil {
			events = []models.PersistedEvent{}
		}
		return events, true
	}

	observability.HistoryFetches.WithLabelValues(l.subject, "error").Inc()
	l.logger.Warn("history fetch failed", "id", id, "error", err)
	if displayed || l.mirror == nil {
		return nil, false
	}

	mirrored, merr := l.mirror.Events(ctx, storage.Subject{Type: l.subject, ID: id}, l.page.Limit)
	if merr != nil || len(mirrored) == 0 {
		if merr != nil {
			l.logger.Warn("history mirror read failed", "id", id, "error", merr)
		}
		return nil, false
	}
	observability.HistoryFetches.WithLabelValues(l.subject, "mirror").Inc()
	return mirrored, true
}

func (l *Loader) markLoaded(id string) {
	l.mu.Lock()
	if l.lastID == id {
		l.loaded = true
	}
	l.mu.Unlock()
}
