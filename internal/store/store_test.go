package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/econcal/internal/instant"
	"github.com/rickgao/econcal/internal/model"
)

// fakeDB records statements and serves canned rows.
type fakeDB struct {
	execSQL   []string
	querySQL  string
	queryArgs []any
	rows      [][]any
	queued    []pgx.QueuedQuery
	affected  []int64
	execErr   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	return &fakeRows{rows: f.rows, idx: -1}, nil
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	for _, q := range b.QueuedQueries {
		f.queued = append(f.queued, *q)
	}
	return &fakeBatchResults{affected: f.affected, err: f.execErr}
}

type fakeBatchResults struct {
	affected []int64
	n        int
	err      error
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	var n int64 = 1
	if r.n < len(r.affected) {
		n = r.affected[r.n]
	}
	r.n++
	if n == 0 {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (r *fakeBatchResults) Close() error             { return nil }

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.idx], nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int64:
			*p = row[i].(int64)
		case *map[string]any:
			if row[i] != nil {
				*p = row[i].(map[string]any)
			}
		}
	}
	return nil
}

func TestBuildRangeQuery(t *testing.T) {
	tests := []struct {
		name     string
		filters  model.Filters
		wantSQL  []string
		wantArgs []any
	}{
		{
			name:     "no filters",
			filters:  model.Filters{},
			wantSQL:  []string{"instant_ms BETWEEN $1 AND $2"},
			wantArgs: []any{int64(10), int64(20)},
		},
		{
			name: "all filters",
			filters: model.Filters{
				Impacts:    []model.Impact{"High", model.ImpactLow},
				Currencies: []string{"usd", " eur "},
				Sources:    []string{"Primary"},
			},
			wantSQL: []string{
				"AND impact = ANY($3)",
				"AND currency = ANY($4)",
				"AND lower(source) = ANY($5)",
			},
			wantArgs: []any{int64(10), int64(20), []string{"high", "low"}, []string{"USD", "EUR"}, []string{"primary"}},
		},
		{
			name:     "currency only",
			filters:  model.Filters{Currencies: []string{"JPY"}},
			wantSQL:  []string{"AND currency = ANY($3)"},
			wantArgs: []any{int64(10), int64(20), []string{"JPY"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildRangeQuery(10, 20, tt.filters)
			for _, frag := range tt.wantSQL {
				if !strings.Contains(sql, frag) {
					t.Errorf("sql missing %q:\n%s", frag, sql)
				}
			}
			if !strings.HasSuffix(sql, "ORDER BY instant_ms, source, event_id") {
				t.Errorf("sql not ordered:\n%s", sql)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestStore_QueryRange(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{"primary", "nfp", "Non-Farm Payrolls", int64(1_700_000_000_000), "USD", "high", "employment", "", "180K", "150K", nil},
		{"primary", "ecb", "ECB Rate", int64(1_700_000_600_000), "EUR", "high", "", "", "", "", map[string]any{"speaker": "Lagarde"}},
	}}
	s := New(db, "primary", nil)

	events, err := s.QueryRange(context.Background(), 0, 2_000_000_000_000, model.Filters{Impacts: []model.Impact{model.ImpactHigh}})
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if at, ok := events[0].Instant(); !ok || at != 1_700_000_000_000 {
		t.Errorf("events[0].Instant() = %d, %v", at, ok)
	}
	if events[0].Impact != model.ImpactHigh || events[0].Forecast != "180K" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Extra["speaker"] != "Lagarde" {
		t.Errorf("events[1].Extra = %v", events[1].Extra)
	}
	if len(db.queryArgs) != 3 {
		t.Errorf("query args = %v, want 3", db.queryArgs)
	}
}

func TestStore_UpsertEvents(t *testing.T) {
	db := &fakeDB{affected: []int64{1, 0}}
	s := New(db, "fallback", nil)

	events := []model.Event{
		{ID: "cpi", Name: "CPI", Time: "2025-03-12T12:30:00Z", Currency: "usd", Impact: model.ImpactHigh, Source: "primary"},
		{Name: "Retail Sales", Time: instant.Pair{Date: "2025-03-14", Time: "8:30am"}},
		{Name: "Bank Holiday", Time: "All Day"},
	}

	res, err := s.UpsertEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("UpsertEvents() error = %v", err)
	}
	want := UpsertResult{Written: 1, Unchanged: 1, Skipped: 1}
	if res != want {
		t.Errorf("UpsertEvents() = %+v, want %+v", res, want)
	}
	if len(db.queued) != 2 {
		t.Fatalf("queued = %d, want 2", len(db.queued))
	}

	first := db.queued[0].Arguments
	if first[0] != "primary" || first[1] != "cpi" || first[4] != "USD" || first[5] != "high" {
		t.Errorf("first row args = %v", first)
	}
	second := db.queued[1].Arguments
	if second[0] != "fallback" {
		t.Errorf("second source = %v, want fallback", second[0])
	}
	if second[1] != model.EventKey(events[1], 1) {
		t.Errorf("second id = %v, want synthesized key", second[1])
	}
}

func TestStore_UpsertEventsError(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeDB{execErr: boom}
	s := New(db, "primary", nil)

	_, err := s.UpsertEvents(context.Background(), []model.Event{{ID: "a", Time: int64(1)}})
	if !errors.Is(err, boom) {
		t.Errorf("UpsertEvents() error = %v, want %v", err, boom)
	}
}

func TestStore_UpsertNothing(t *testing.T) {
	db := &fakeDB{}
	s := New(db, "primary", nil)

	res, err := s.UpsertEvents(context.Background(), []model.Event{{Name: "TBD"}})
	if err != nil {
		t.Fatalf("UpsertEvents() error = %v", err)
	}
	if res.Skipped != 1 || len(db.queued) != 0 {
		t.Errorf("res = %+v, queued = %d", res, len(db.queued))
	}
}

func TestStore_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	s := New(db, "primary", nil)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS calendar_events") {
		t.Errorf("execSQL = %v", db.execSQL)
	}
}
