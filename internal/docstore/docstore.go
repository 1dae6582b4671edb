package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/econcal/internal/adapter"
	"github.com/rickgao/econcal/internal/model"
)

// ErrRangeTooWide is returned when a query spans more days than MaxDays.
var ErrRangeTooWide = errors.New("docstore: range spans too many days")

const day = 24 * time.Hour

// ObjectAPI is the subset of *s3.Client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds document store settings.
type Config struct {
	Bucket      string
	Prefix      string
	MaxDays     int // widest range served by one query
	Concurrency int // parallel day fetches
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDays:     62,
		Concurrency: 8,
	}
}

// Store reads and writes day documents.
type Store struct {
	api    ObjectAPI
	cfg    Config
	source string
	logger *slog.Logger
}

// New creates a Store. source is stamped on read events that carry none.
func New(api ObjectAPI, cfg Config, source string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDays < 1 {
		cfg.MaxDays = DefaultConfig().MaxDays
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Store{
		api:    api,
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "docstore", "bucket", cfg.Bucket),
	}
}

// NewClient builds an S3 client from the default AWS credential chain.
// endpoint overrides the service URL for S3-compatible stores.
func NewClient(ctx context.Context, region, endpoint string, usePathStyle bool) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	}), nil
}

// Key returns the object key of the document holding the UTC day of t.
func (s *Store) Key(t time.Time) string {
	return s.cfg.Prefix + t.UTC().Format("2006/01/02") + ".json"
}

// days lists the UTC midnights covering [start, end].
func days(start, end int64) []time.Time {
	first := time.UnixMilli(start).UTC().Truncate(day)
	last := time.UnixMilli(end).UTC().Truncate(day)
	var out []time.Time
	for d := first; !d.After(last); d = d.Add(day) {
		out = append(out, d)
	}
	return out
}

// QueryRange fetches every day document overlapping [start, end] in
// parallel and returns the events inside the range that pass f.
func (s *Store) QueryRange(ctx context.Context, start, end int64, f model.Filters) ([]model.Event, error) {
	if end < start {
		return nil, nil
	}
	if n := (end-start)/day.Milliseconds() + 1; n > int64(s.cfg.MaxDays) {
		return nil, fmt.Errorf("%w: %d > %d", ErrRangeTooWide, n, s.cfg.MaxDays)
	}
	ds := days(start, end)

	perDay := make([][]model.Event, len(ds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, d := range ds {
		g.Go(func() error {
			events, err := s.readDay(gctx, d)
			if err != nil {
				return err
			}
			perDay[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Event
	for _, events := range perDay {
		for _, e := range events {
			at, ok := e.Instant()
			if !ok || at < start || at > end {
				continue
			}
			if e.Source == "" {
				e.Source = s.source
			}
			if !f.Match(e) {
				continue
			}
			out = append(out, e)
		}
	}

	s.logger.Debug("range query",
		"days", len(ds),
		"events", len(out),
	)
	return out, nil
}

// readDay returns the events in one day document. A missing document is
// an empty day.
func (s *Store) readDay(ctx context.Context, d time.Time) ([]model.Event, error) {
	key := s.Key(d)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	events, err := adapter.DecodeEvents(data)
	if err != nil {
		return nil, fmt.Errorf("decode s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return events, nil
}

// WriteResult summarizes one WriteEvents call.
type WriteResult struct {
	Days    int // documents written
	Events  int // events written, including merged existing ones
	Skipped int // events without a resolvable time
}

// WriteEvents merges events into their day documents. Events replace stored
// events with the same ID; other stored events are kept.
func (s *Store) WriteEvents(ctx context.Context, events []model.Event) (WriteResult, error) {
	var res WriteResult

	byDay := make(map[time.Time][]model.Event)
	for i, e := range events {
		at, ok := e.Instant()
		if !ok {
			res.Skipped++
			continue
		}
		if e.ID == "" {
			e.ID = model.EventKey(e, i)
		}
		d := time.UnixMilli(at).UTC().Truncate(day)
		byDay[d] = append(byDay[d], e)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	results := make(chan int, len(byDay))
	for d, fresh := range byDay {
		g.Go(func() error {
			n, err := s.writeDay(gctx, d, fresh)
			if err != nil {
				return err
			}
			results <- n
			return nil
		})
	}
	err := g.Wait()
	close(results)
	for n := range results {
		res.Days++
		res.Events += n
	}
	if err != nil {
		return res, err
	}

	s.logger.Debug("wrote day documents",
		"days", res.Days,
		"events", res.Events,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *Store) writeDay(ctx context.Context, d time.Time, fresh []model.Event) (int, error) {
	existing, err := s.readDay(ctx, d)
	if err != nil {
		return 0, err
	}

	merged := make(map[string]model.Event, len(existing)+len(fresh))
	for _, e := range existing {
		merged[e.ID] = e
	}
	for _, e := range fresh {
		merged[e.ID] = e
	}

	all := make([]model.Event, 0, len(merged))
	for _, e := range merged {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		ai, _ := all[i].Instant()
		aj, _ := all[j].Instant()
		if ai != aj {
			return ai < aj
		}
		return all[i].ID < all[j].ID
	})

	data, err := adapter.MarshalEvents(all)
	if err != nil {
		return 0, fmt.Errorf("encode day %s: %w", d.Format(time.DateOnly), err)
	}

	key := s.Key(d)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"updated-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return len(all), nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
