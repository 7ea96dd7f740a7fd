package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Backoff decides the wait before reconnect attempt n (1-based).
// ok=false stops the loop.
type Backoff interface {
	Delay(attempt int) (d time.Duration, ok bool)
}

// Run pumps the session until ctx is done, reconnecting after every stream
// close or transport fault. Market and position state carry over.
// It returns nil on cancellation and an error only when the backoff gives up.
func Run(ctx context.Context, s *Session, b Backoff) error {
	defer s.Disconnect()

	attempt := 0
	var lastErr error
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.IsConnected() {
			if attempt > 0 {
				d, ok := b.Delay(attempt)
				if !ok {
					return fmt.Errorf("giving up after %d reconnect attempts: %w", attempt, lastErr)
				}
				slog.Info("Attempting to reconnect",
					slog.Int("attempt", attempt),
					slog.Duration("delay", d))
				if !s.sleep(ctx, d) {
					return nil
				}
			}
			if err := s.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				attempt++
				lastErr = err
				slog.Warn("Connect failed", slog.Int("attempt", attempt), slog.Any("error", err))
				continue
			}
			attempt = 0
		}

		res, err := s.PumpOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if res != PumpStreamClosed && err == nil {
			continue
		}

		if err != nil {
			lastErr = err
			slog.Warn("Transport fault", slog.Any("error", err))
		} else {
			lastErr = ErrStreamClosed
		}
		if derr := s.Disconnect(); derr != nil && !errors.Is(derr, ErrNotConnected) {
			slog.Debug("Disconnect after fault", slog.Any("error", derr))
		}
		attempt++
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}
