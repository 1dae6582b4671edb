// calwatch connects to an econcal snapshot stream and prints NOW/NEXT per
// surface as snapshots arrive.
// Usage: calwatch -url ws://localhost:8080/ws [-surface table,modal] [-verbose]
//
// Signed servers need -key-id and -private-key (RSA PEM).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rickgao/econcal/internal/auth"
	"github.com/rickgao/econcal/internal/stream"
	"github.com/rickgao/econcal/internal/surface"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "snapshot stream URL")
	surfaces := flag.String("surface", "", "comma-separated surfaces to watch (default: all)")
	keyID := flag.String("key-id", os.Getenv("ECONCAL_KEY_ID"), "access key ID for signed servers")
	keyPath := flag.String("private-key", os.Getenv("ECONCAL_PRIVATE_KEY_PATH"), "RSA private key PEM for signed servers")
	verbose := flag.Bool("verbose", false, "print full snapshot JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := stream.DefaultClientConfig()
	cfg.URL = *url
	if *surfaces != "" {
		cfg.Surfaces = strings.Split(*surfaces, ",")
	}
	if *keyID != "" || *keyPath != "" {
		creds, err := auth.LoadCredentials(*keyID, *keyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		cfg.Credentials = creds
	}

	var lastSeq int64
	handle := func(msg stream.Message) {
		if lastSeq > 0 && msg.Seq > lastSeq+1 {
			logger.Warn("missed snapshots", "count", msg.Seq-lastSeq-1)
		}
		lastSeq = msg.Seq
		if msg.Snapshot == nil {
			return
		}
		if *verbose {
			data, _ := json.MarshalIndent(msg.Snapshot, "", "  ")
			fmt.Printf("[%s] %s\n", msg.Snapshot.Surface, data)
			return
		}
		fmt.Println(summarize(*msg.Snapshot))
	}

	logger.Info("watching - press Ctrl+C to stop", "url", cfg.URL)
	stream.Watch(ctx, cfg, stream.DefaultWatchConfig(), handle, logger)
	logger.Info("shutdown complete")
}

// summarize renders one line: surface, NOW names, NEXT names and countdown.
func summarize(s surface.Snapshot) string {
	names := make(map[string]string, len(s.Rows))
	for _, r := range s.Rows {
		names[r.Key] = r.Name
	}
	label := func(ids []string) string {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = names[id]
		}
		return strings.Join(out, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] now=[%s]", s.Surface, label(s.Now))
	if s.Next != nil {
		fmt.Fprintf(&b, " next=[%s] in %s (%s)", label(s.Next.IDs), s.Next.Countdown, s.Next.Relative)
	} else {
		b.WriteString(" next=none")
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, " error=%q", s.LastError)
	}
	return b.String()
}
