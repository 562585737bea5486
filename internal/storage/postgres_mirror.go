package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-sync/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS ride_events_mirror (
	id           TEXT NOT NULL,
	subject_type TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	payload      JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_type, subject_id, id)
)`

type PostgresMirror struct {
	db *sql.DB
}

func NewPostgresMirror(dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresMirror{db: db}, nil
}

// Migrate creates the mirror table when it does not exist.
func (p *PostgresMirror) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresMirror) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresMirror) Close() error {
	return p.db.Close()
}

func (p *PostgresMirror) Append(ctx context.Context, s Subject, ev models.PersistedEvent) error {
	created := time.Now().UTC()
	if ev.CreatedAt != nil {
		created = *ev.CreatedAt
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = []byte(ev.Payload)
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_events_mirror(id, subject_type, subject_id, kind, payload, created_at)
		VALUES($1,$2,$3,$4,$5,$6) ON CONFLICT DO NOTHING`,
		ev.ID, s.Type, s.ID, ev.Kind, payload, created)
	return err
}

func (p *PostgresMirror) Events(ctx context.Context, s Subject, limit int) ([]models.PersistedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, kind, payload, created_at FROM ride_events_mirror
		WHERE subject_type=$1 AND subject_id=$2 ORDER BY created_at DESC LIMIT $3`, s.Type, s.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PersistedEvent{}
	for rows.Next() {
		var (
			ev      models.PersistedEvent
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &payload, &created); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			ev.Payload = json.RawMessage(payload)
		}
		ev.CreatedAt = &created
		out = append(out, ev)
	}
	return out, rows.Err()
}
