package backend

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/econcal/internal/config"
)

// schemaDB accepts Exec calls and fails everything else.
type schemaDB struct {
	execs   atomic.Int32
	execErr error
}

func (d *schemaDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	d.execs.Add(1)
	return pgconn.NewCommandTag("CREATE TABLE"), d.execErr
}

func (d *schemaDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *schemaDB) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sources: []config.SourceConfig{
			{
				Name: "rest",
				Type: config.SourceREST,
				REST: config.RESTConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, MaxRetries: 1, PageLimit: 10},
			},
			{
				Name: "feeds",
				Type: config.SourceICS,
				ICS: config.ICSConfig{
					Feeds:   []config.FeedConfig{{ID: "fomc", URL: "http://127.0.0.1:1/fomc.ics"}},
					Timeout: time.Second,
				},
			},
			{
				Name: "archive",
				Type: config.SourcePostgres,
			},
			{
				Name: "bucket",
				Type: config.SourceS3,
				S3:   config.S3Config{Bucket: "cal", Region: "us-east-1", Endpoint: "http://127.0.0.1:9000", UsePathStyle: true},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	db := &schemaDB{}
	r, err := Build(context.Background(), testConfig(), db, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "rest,feeds,archive,bucket" {
		t.Errorf("Names() = %s, want rest,feeds,archive,bucket", got)
	}
	if db.execs.Load() != 1 {
		t.Errorf("schema execs = %d, want 1", db.execs.Load())
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		db      *schemaDB
		wantErr string
	}{
		{
			name:    "postgres without database",
			mutate:  func(*config.Config) {},
			wantErr: "postgres configured",
		},
		{
			name:    "schema failure",
			mutate:  func(*config.Config) {},
			db:      &schemaDB{execErr: errors.New("permission denied")},
			wantErr: "permission denied",
		},
		{
			name:    "unknown type",
			mutate:  func(c *config.Config) { c.Sources[0].Type = "ftp" },
			db:      &schemaDB{},
			wantErr: "unknown source type",
		},
		{
			name: "missing signing key",
			mutate: func(c *config.Config) {
				c.Sources[0].REST.KeyID = "kid"
				c.Sources[0].REST.PrivateKeyPath = "/nonexistent/key.pem"
			},
			db:      &schemaDB{},
			wantErr: "source rest",
		},
		{
			name: "duplicate name",
			mutate: func(c *config.Config) {
				c.Sources[1].Name = "REST"
			},
			db:      &schemaDB{},
			wantErr: "already registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			var err error
			if tt.db == nil {
				_, err = Build(context.Background(), cfg, nil, nil)
			} else {
				_, err = Build(context.Background(), cfg, tt.db, nil)
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Build() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()

	if _, err := NewSink(ctx, config.IngestConfig{Sink: config.SinkPostgres}, nil, nil); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("postgres without db error = %v, want %v", err, ErrNoDatabase)
	}

	db := &schemaDB{}
	if sink, err := NewSink(ctx, config.IngestConfig{Sink: config.SinkPostgres}, db, nil); err != nil || sink == nil {
		t.Errorf("postgres sink = %v, %v", sink, err)
	}
	if db.execs.Load() != 1 {
		t.Errorf("schema execs = %d, want 1", db.execs.Load())
	}

	s3cfg := config.IngestConfig{
		Sink: config.SinkS3,
		S3:   config.S3Config{Bucket: "cal", Region: "us-east-1", Endpoint: "http://127.0.0.1:9000"},
	}
	if sink, err := NewSink(ctx, s3cfg, nil, nil); err != nil || sink == nil {
		t.Errorf("s3 sink = %v, %v", sink, err)
	}

	if _, err := NewSink(ctx, config.IngestConfig{Sink: "kafka"}, nil, nil); err == nil {
		t.Error("unknown sink error = nil")
	}
}
