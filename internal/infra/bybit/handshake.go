package bybit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bytra_go/internal/event"
	"bytra_go/internal/infra"
)

// maxHandshakeFrames bounds how many unrelated frames are skipped while
// waiting for an ack.
const maxHandshakeFrames = 64

type frameConn interface {
	ReadNext(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
}

// Handshake logs in (when signer is set) and subscribes, waiting up to
// timeout for each ack.
func Handshake(codec *Codec, signer *Signer, timeout time.Duration) infra.Handshake {
	return func(ctx context.Context, c *infra.WSConn, topics []string) error {
		return handshake(ctx, c, codec, signer, topics, timeout)
	}
}

func handshake(ctx context.Context, c frameConn, codec *Codec, signer *Signer, topics []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if signer != nil {
		frame, err := signer.AuthFrame()
		if err != nil {
			return fmt.Errorf("build auth frame: %w", err)
		}
		if err := c.Send(ctx, frame); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		if err := awaitAck(ctx, c, codec, event.EvAuthAck); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	frame, err := codec.SubscribeFrame(topics)
	if err != nil {
		return fmt.Errorf("build subscribe frame: %w", err)
	}
	if err := c.Send(ctx, frame); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	if err := awaitAck(ctx, c, codec, event.EvSubscribeAck); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func awaitAck(ctx context.Context, c frameConn, codec *Codec, want event.Type) error {
	for range maxHandshakeFrames {
		raw, err := c.ReadNext(ctx)
		if err != nil {
			return err
		}
		ev, err := codec.Decode(raw)
		if err != nil || ev == nil || ev.GetType() != want {
			slog.Debug("Skipping frame during handshake", slog.String("want", want.String()))
			continue
		}
		switch e := ev.(type) {
		case *event.AuthAckEvent:
			if !e.Success {
				return fmt.Errorf("rejected: %s", e.Message)
			}
		case *event.SubscribeAckEvent:
			if !e.Success {
				return fmt.Errorf("rejected: %s", e.Message)
			}
		}
		return nil
	}
	return fmt.Errorf("no %s within %d frames", want, maxHandshakeFrames)
}
