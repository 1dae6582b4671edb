package stream

import (
	"context"
	"log/slog"
	"time"
)

// Watch keeps a subscription open until ctx ends, calling handle for every
// message. Lost connections are redialed with exponential backoff; the
// backoff resets after each successful connect. Watch returns ctx.Err().
func Watch(ctx context.Context, cfg ClientConfig, wcfg WatchConfig, handle func(Message), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWatchConfig()
	if wcfg.ReconnectBaseWait <= 0 {
		wcfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if wcfg.ReconnectMaxWait < wcfg.ReconnectBaseWait {
		wcfg.ReconnectMaxWait = wcfg.ReconnectBaseWait
	}

	wait := wcfg.ReconnectBaseWait
	for {
		c := NewClient(cfg, logger)
		err := c.Connect(ctx)
		if err == nil {
			logger.Info("stream connected", "url", cfg.URL)
			wait = wcfg.ReconnectBaseWait
			err = pump(ctx, c, handle)
		}
		c.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("stream disconnected, reconnecting", "error", err, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > wcfg.ReconnectMaxWait {
			wait = wcfg.ReconnectMaxWait
		}
	}
}

func pump(ctx context.Context, c Client, handle func(Message)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.Errors():
			// Frames read before the failure are still delivered.
			for {
				select {
				case msg := <-c.Messages():
					handle(msg)
				default:
					return err
				}
			}
		case msg := <-c.Messages():
			handle(msg)
		}
	}
}
