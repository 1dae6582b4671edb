package ingest

import (
	"context"

	"github.com/rickgao/econcal/internal/docstore"
	"github.com/rickgao/econcal/internal/model"
	"github.com/rickgao/econcal/internal/store"
)

// WriteResult summarizes what a sink did with one batch.
type WriteResult struct {
	Written   int
	Unchanged int
	Skipped   int
}

// Sink persists ingested events.
type Sink interface {
	Write(ctx context.Context, events []model.Event) (WriteResult, error)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, events []model.Event) (WriteResult, error)

func (f SinkFunc) Write(ctx context.Context, events []model.Event) (WriteResult, error) {
	return f(ctx, events)
}

// StoreSink writes into the Postgres event table.
func StoreSink(s *store.Store) Sink {
	return SinkFunc(func(ctx context.Context, events []model.Event) (WriteResult, error) {
		res, err := s.UpsertEvents(ctx, events)
		return WriteResult{Written: res.Written, Unchanged: res.Unchanged, Skipped: res.Skipped}, err
	})
}

// DocSink writes into S3 day documents. Documents are rewritten whole, so
// every event with a resolvable time counts as written.
func DocSink(s *docstore.Store) Sink {
	return SinkFunc(func(ctx context.Context, events []model.Event) (WriteResult, error) {
		res, err := s.WriteEvents(ctx, events)
		out := WriteResult{Skipped: res.Skipped}
		if err == nil {
			out.Written = len(events) - res.Skipped
		}
		return out, err
	})
}
