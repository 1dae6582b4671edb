package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/econcal/internal/model"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Schema creates the events table and its range index.
const Schema = `
CREATE TABLE IF NOT EXISTS calendar_events (
	source     TEXT        NOT NULL,
	event_id   TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	instant_ms BIGINT      NOT NULL,
	currency   TEXT        NOT NULL DEFAULT '',
	impact     TEXT        NOT NULL DEFAULT '',
	category   TEXT        NOT NULL DEFAULT '',
	actual     TEXT        NOT NULL DEFAULT '',
	forecast   TEXT        NOT NULL DEFAULT '',
	previous   TEXT        NOT NULL DEFAULT '',
	extra      JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, event_id)
);
CREATE INDEX IF NOT EXISTS calendar_events_instant_idx ON calendar_events (instant_ms);
`

const upsertSQL = `
	INSERT INTO calendar_events (source, event_id, name, instant_ms, currency, impact, category, actual, forecast, previous, extra)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (source, event_id) DO UPDATE SET
		name = EXCLUDED.name,
		instant_ms = EXCLUDED.instant_ms,
		currency = EXCLUDED.currency,
		impact = EXCLUDED.impact,
		category = EXCLUDED.category,
		actual = EXCLUDED.actual,
		forecast = EXCLUDED.forecast,
		previous = EXCLUDED.previous,
		extra = EXCLUDED.extra,
		updated_at = now()
	WHERE (calendar_events.name, calendar_events.instant_ms, calendar_events.currency, calendar_events.impact,
	       calendar_events.category, calendar_events.actual, calendar_events.forecast, calendar_events.previous,
	       calendar_events.extra)
	  IS DISTINCT FROM
	      (EXCLUDED.name, EXCLUDED.instant_ms, EXCLUDED.currency, EXCLUDED.impact,
	       EXCLUDED.category, EXCLUDED.actual, EXCLUDED.forecast, EXCLUDED.previous,
	       EXCLUDED.extra)
`

// Store reads and writes calendar events.
type Store struct {
	db     DB
	source string
	logger *slog.Logger
}

// New creates a Store. source is stamped on written events that carry none.
func New(db DB, source string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		source: source,
		logger: logger.With("component", "store"),
	}
}

// EnsureSchema creates the events table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// QueryRange returns events with start <= instant_ms <= end that pass f,
// ordered by instant.
func (s *Store) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	sql, args := buildRangeQuery(start, end, f)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	s.logger.Debug("range query",
		"start", start,
		"end", end,
		"rows", len(events),
	)
	return events, nil
}

// UpsertResult summarizes one UpsertEvents call.
type UpsertResult struct {
	Written   int // inserted or changed rows
	Unchanged int // rows identical to what was stored
	Skipped   int // events without a resolvable time
}

// UpsertEvents inserts events, updating stored rows whose content changed.
func (s *Store) UpsertEvents(ctx context.Context, events []model.Event) (UpsertResult, error) {
	var res UpsertResult
	start := time.Now()

	batch := &pgx.Batch{}
	for i, e := range events {
		at, ok := e.Instant()
		if !ok {
			res.Skipped++
			continue
		}
		source := e.Source
		if source == "" {
			source = s.source
		}
		batch.Queue(upsertSQL,
			source, model.EventKey(e, i), e.Name, at,
			strings.ToUpper(e.Currency), string(e.Impact), e.Category,
			e.Actual, e.Forecast, e.Previous, e.Extra,
		)
	}
	if batch.Len() == 0 {
		return res, nil
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return res, fmt.Errorf("upsert event: %w", err)
		}
		if ct.RowsAffected() == 0 {
			res.Unchanged++
		} else {
			res.Written++
		}
	}

	s.logger.Debug("upserted events",
		"written", res.Written,
		"unchanged", res.Unchanged,
		"skipped", res.Skipped,
		"duration", time.Since(start),
	)
	return res, nil
}

// buildRangeQuery renders the range select with one ANY clause per
// non-empty filter set.
func buildRangeQuery(start, end int64, f model.Filters) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT source, event_id, name, instant_ms, currency, impact, category, actual, forecast, previous, extra
	FROM calendar_events
	WHERE instant_ms BETWEEN $1 AND $2`)
	args := []any{start, end}

	if len(f.Impacts) > 0 {
		impacts := make([]string, 0, len(f.Impacts))
		for _, imp := range f.Impacts {
			impacts = append(impacts, string(model.ParseImpact(string(imp))))
		}
		args = append(args, impacts)
		fmt.Fprintf(&b, "\n\tAND impact = ANY($%d)", len(args))
	}
	if len(f.Currencies) > 0 {
		currencies := make([]string, 0, len(f.Currencies))
		for _, c := range f.Currencies {
			currencies = append(currencies, strings.ToUpper(strings.TrimSpace(c)))
		}
		args = append(args, currencies)
		fmt.Fprintf(&b, "\n\tAND currency = ANY($%d)", len(args))
	}
	if len(f.Sources) > 0 {
		sources := make([]string, 0, len(f.Sources))
		for _, src := range f.Sources {
			sources = append(sources, strings.ToLower(strings.TrimSpace(src)))
		}
		args = append(args, sources)
		fmt.Fprintf(&b, "\n\tAND lower(source) = ANY($%d)", len(args))
	}

	b.WriteString("\n\tORDER BY instant_ms, source, event_id")
	return b.String(), args
}

func scanEvent(row pgx.CollectableRow) (model.Event, error) {
	var (
		e      model.Event
		at     int64
		impact string
	)
	err := row.Scan(&e.Source, &e.ID, &e.Name, &at, &e.Currency, &impact,
		&e.Category, &e.Actual, &e.Forecast, &e.Previous, &e.Extra)
	if err != nil {
		return model.Event{}, err
	}
	e.Time = at
	e.Impact = model.Impact(impact)
	return e, nil
}
