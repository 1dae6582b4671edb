package surface

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/classify"
	"github.com/rickgao/econcal/internal/countdown"
	"github.com/rickgao/econcal/internal/model"
)

var base = time.Date(2024, 3, 8, 23, 30, 0, 0, time.UTC)

func ms(d time.Duration) int64 {
	return base.Add(d).UnixMilli()
}

func sampleEvents() []model.Event {
	return []model.Event{
		{ID: "a", Name: "CPI", Time: ms(-5 * time.Minute)},
		{ID: "b", Name: "NFP", Time: ms(time.Hour)},
		{ID: "c", Name: "Unemployment", Time: ms(time.Hour)},
		{ID: "d", Name: "Retail Sales", Time: ms(2 * time.Hour)},
		{ID: "e", Name: "PPI", Time: ms(-time.Hour)},
		{ID: "f", Name: "Speech", Time: "tentative"},
	}
}

func rowByID(t *testing.T, s Snapshot, id string) Row {
	t.Helper()
	for _, r := range s.Rows {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("row %q not found", id)
	return Row{}
}

func TestBuildSnapshot_States(t *testing.T) {
	snap := BuildSnapshot("table", sampleEvents(), base.UnixMilli(), 10*time.Minute, time.UTC)

	tests := []struct {
		id   string
		want classify.State
	}{
		{"a", classify.StateNow},
		{"b", classify.StateNext},
		{"c", classify.StateNext},
		{"d", classify.StateFuture},
		{"e", classify.StatePast},
		{"f", classify.StateUnscheduled},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := rowByID(t, snap, tt.id).State; got != tt.want {
				t.Errorf("State = %v, want %v", got, tt.want)
			}
		})
	}

	if len(snap.Now) != 1 || snap.Now[0] != "a" {
		t.Errorf("Now = %v, want [a]", snap.Now)
	}
	if snap.Next == nil {
		t.Fatal("Next = nil, want summary")
	}
	if snap.Next.InstantMs != ms(time.Hour) {
		t.Errorf("Next.InstantMs = %d, want %d", snap.Next.InstantMs, ms(time.Hour))
	}
	if len(snap.Next.IDs) != 2 || snap.Next.IDs[0] != "b" || snap.Next.IDs[1] != "c" {
		t.Errorf("Next.IDs = %v, want [b c]", snap.Next.IDs)
	}
	if want := countdown.Format(time.Hour.Milliseconds()); snap.Next.Countdown != want {
		t.Errorf("Next.Countdown = %q, want %q", snap.Next.Countdown, want)
	}
}

func TestBuildSnapshot_RowDisplay(t *testing.T) {
	snap := BuildSnapshot("table", sampleEvents(), base.UnixMilli(), 10*time.Minute, time.UTC)

	if r := rowByID(t, snap, "d"); r.Countdown != countdown.Format(2*time.Hour.Milliseconds()) {
		t.Errorf("future Countdown = %q, want %q", r.Countdown, countdown.Format(2*time.Hour.Milliseconds()))
	}
	if r := rowByID(t, snap, "a"); r.Countdown != "" {
		t.Errorf("now Countdown = %q, want empty", r.Countdown)
	}
	e := rowByID(t, snap, "e")
	if e.Countdown != "" {
		t.Errorf("past Countdown = %q, want empty", e.Countdown)
	}
	if !e.PastStyle {
		t.Error("past row PastStyle = false, want true")
	}
	if e.Day != "2024-03-08" || e.Clock != "22:30" {
		t.Errorf("past row Day/Clock = %s %s, want 2024-03-08 22:30", e.Day, e.Clock)
	}

	f := rowByID(t, snap, "f")
	if f.InstantMs != nil || f.Bucket != nil {
		t.Errorf("unscheduled row InstantMs=%v Bucket=%v, want nil", f.InstantMs, f.Bucket)
	}
	if f.PastStyle {
		t.Error("unscheduled row PastStyle = true, want false")
	}
}

func TestBuildSnapshot_TimezoneOnlyAffectsDisplay(t *testing.T) {
	events := sampleEvents()
	now := base.UnixMilli()
	tokyo := time.FixedZone("JST", 9*3600)

	utc := BuildSnapshot("table", events, now, 10*time.Minute, time.UTC)
	jst := BuildSnapshot("modal", events, now, 10*time.Minute, tokyo)

	if !utc.Classification().Equal(jst.Classification()) {
		t.Errorf("classification differs across timezones: %v vs %v", utc.Classification(), jst.Classification())
	}
	if got := rowByID(t, jst, "d").Day; got != "2024-03-09" {
		t.Errorf("JST Day = %s, want 2024-03-09", got)
	}
	if got := rowByID(t, utc, "d").Day; got != "2024-03-09" {
		t.Errorf("UTC Day = %s, want 2024-03-09", got)
	}
	if got := rowByID(t, jst, "e").Day; got != "2024-03-09" {
		t.Errorf("JST past Day = %s, want 2024-03-09", got)
	}
	if jst.Timezone != "JST" {
		t.Errorf("Timezone = %q, want JST", jst.Timezone)
	}
}

func TestBuildSnapshot_Empty(t *testing.T) {
	snap := BuildSnapshot("table", nil, base.UnixMilli(), 10*time.Minute, nil)
	if snap.Next != nil {
		t.Errorf("Next = %+v, want nil", snap.Next)
	}
	if len(snap.Now) != 0 || len(snap.Rows) != 0 {
		t.Errorf("Now=%v Rows=%v, want empty", snap.Now, snap.Rows)
	}
	if snap.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", snap.Timezone)
	}
}

type recorder struct {
	mu        sync.Mutex
	snaps     []Snapshot
	refreshes []error
	classes   [][3]int
}

func (r *recorder) Publish(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) ObserveClassification(_ string, events, now, next int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = append(r.classes, [3]int{events, now, next})
}

func (r *recorder) ObserveRefresh(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, err)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "table"
	return cfg
}

func fixedClock() Clock {
	return func() time.Time { return base }
}

func TestDriver_RefreshAndTick(t *testing.T) {
	var gotStart, gotEnd int64
	var gotFilters model.Filters
	q := batcher.RangeQueryFunc(func(_ context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
		gotStart, gotEnd, gotFilters = start, end, f
		return sampleEvents(), nil
	})

	cfg := testConfig()
	cfg.Filters = model.Filters{Currencies: []string{"USD"}}
	rec := &recorder{}
	d := New(cfg, q, nil, WithClock(fixedClock()), WithObserver(rec), WithPublisher(rec))

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if want := base.Add(-24 * time.Hour).UnixMilli(); gotStart != want {
		t.Errorf("start = %d, want %d", gotStart, want)
	}
	if want := base.Add(7 * 24 * time.Hour).UnixMilli(); gotEnd != want {
		t.Errorf("end = %d, want %d", gotEnd, want)
	}
	if len(gotFilters.Currencies) != 1 || gotFilters.Currencies[0] != "USD" {
		t.Errorf("filters = %+v, want USD", gotFilters)
	}

	snap := d.Tick()
	if len(snap.Now) != 1 || snap.Now[0] != "a" {
		t.Errorf("Now = %v, want [a]", snap.Now)
	}
	if snap.LastRefresh == nil || !snap.LastRefresh.Equal(base) {
		t.Errorf("LastRefresh = %v, want %v", snap.LastRefresh, base)
	}
	if got := d.Snapshot(); got.NowMs != snap.NowMs || len(got.Rows) != 6 {
		t.Errorf("Snapshot() = %+v, want latest tick", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.snaps) != 1 {
		t.Errorf("published = %d, want 1", len(rec.snaps))
	}
	if len(rec.classes) != 1 || rec.classes[0] != [3]int{6, 1, 2} {
		t.Errorf("classifications = %v, want [[6 1 2]]", rec.classes)
	}
	if len(rec.refreshes) != 1 || rec.refreshes[0] != nil {
		t.Errorf("refreshes = %v, want [nil]", rec.refreshes)
	}
}

func TestDriver_RefreshFailureKeepsDataset(t *testing.T) {
	errUpstream := errors.New("upstream down")
	var calls atomic.Int32
	q := batcher.RangeQueryFunc(func(context.Context, int64, int64, model.Filters) ([]model.Event, error) {
		if calls.Add(1) == 1 {
			return sampleEvents(), nil
		}
		return nil, errUpstream
	})

	d := New(testConfig(), q, nil, WithClock(fixedClock()))
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if err := d.Refresh(context.Background()); !errors.Is(err, errUpstream) {
		t.Fatalf("second Refresh() error = %v, want %v", err, errUpstream)
	}

	if got := len(d.Events()); got != 6 {
		t.Errorf("Events() = %d, want 6", got)
	}
	snap := d.Tick()
	if snap.LastError != errUpstream.Error() {
		t.Errorf("LastError = %q, want %q", snap.LastError, errUpstream.Error())
	}
	if len(snap.Rows) != 6 {
		t.Errorf("Rows = %d, want 6", len(snap.Rows))
	}
}

func TestBuildSnapshot_SameIDAcrossSources(t *testing.T) {
	events := []model.Event{
		{ID: "1", Name: "old", Source: "primary", Time: ms(-2 * time.Hour)},
		{ID: "1", Name: "soon", Source: "ics", Time: ms(time.Minute)},
	}
	snap := BuildSnapshot("table", events, base.UnixMilli(), 10*time.Minute, time.UTC)

	if snap.Next == nil || len(snap.Next.IDs) != 1 || snap.Next.IDs[0] != "ics/1" {
		t.Fatalf("Next = %+v, want [ics/1]", snap.Next)
	}

	tests := []struct {
		key      string
		want     classify.State
		wantPast bool
	}{
		{"primary/1", classify.StatePast, true},
		{"ics/1", classify.StateNext, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var row *Row
			for i := range snap.Rows {
				if snap.Rows[i].Key == tt.key {
					row = &snap.Rows[i]
				}
			}
			if row == nil {
				t.Fatalf("row %q not found", tt.key)
			}
			if row.ID != "1" {
				t.Errorf("ID = %q, want upstream ID 1", row.ID)
			}
			if row.State != tt.want || row.PastStyle != tt.wantPast {
				t.Errorf("State = %v past=%v, want %v past=%v", row.State, row.PastStyle, tt.want, tt.wantPast)
			}
			if row.State == classify.StateNext && *row.InstantMs != snap.Next.InstantMs {
				t.Errorf("NEXT row at %d, want %d", *row.InstantMs, snap.Next.InstantMs)
			}
		})
	}
}

func TestDriver_AssignsMissingIDs(t *testing.T) {
	q := batcher.RangeQueryFunc(func(context.Context, int64, int64, model.Filters) ([]model.Event, error) {
		return []model.Event{{Name: "GDP", Time: ms(time.Hour)}}, nil
	})
	d := New(testConfig(), q, nil, WithClock(fixedClock()))
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	events := d.Events()
	if len(events) != 1 || events[0].ID == "" {
		t.Fatalf("Events() = %+v, want one event with an ID", events)
	}
	snap := d.Tick()
	if snap.Next == nil || snap.Next.IDs[0] != events[0].ID {
		t.Errorf("Next = %+v, want [%s]", snap.Next, events[0].ID)
	}
}

func TestDriver_StartStop(t *testing.T) {
	var calls atomic.Int32
	q := batcher.RangeQueryFunc(func(context.Context, int64, int64, model.Filters) ([]model.Event, error) {
		calls.Add(1)
		return sampleEvents(), nil
	})

	published := make(chan Snapshot, 16)
	pub := PublisherFunc(func(s Snapshot) {
		select {
		case published <- s:
		default:
		}
	})

	cfg := testConfig()
	cfg.Tick = 10 * time.Millisecond
	cfg.Refresh = time.Hour
	d := New(cfg, q, nil, WithPublisher(pub))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case s := <-published:
			if len(s.Rows) != 6 {
				t.Errorf("Rows = %d, want 6", len(s.Rows))
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}
