// Package backtest plays recorded exchange traffic through the session as
// if it came from a live stream.
package backtest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"bytra_go/internal/engine"
)

// maxFrameSize bounds one recorded frame (one line).
const maxFrameSize = 4 << 20

// ErrReplayDone is returned by Connect once the recording has been played.
var ErrReplayDone = errors.New("replay finished")

// ReplayTransport serves newline-delimited frames from a recording. The
// first Connect plays it; end of input is a stream close. It implements
// engine.Transport.
type ReplayTransport struct {
	open  func() (io.ReadCloser, error)
	delay time.Duration // pause between frames, 0 = as fast as possible

	mu     sync.Mutex
	played bool
	sent   int
}

// NewFileReplay replays the recording at path.
func NewFileReplay(path string, delay time.Duration) *ReplayTransport {
	return &ReplayTransport{
		open:  func() (io.ReadCloser, error) { return os.Open(path) },
		delay: delay,
	}
}

// NewReaderReplay replays frames read from r.
func NewReaderReplay(r io.Reader) *ReplayTransport {
	return &ReplayTransport{
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

// Connect implements engine.Transport. Topics are ignored: the recording
// already holds whatever was subscribed.
func (t *ReplayTransport) Connect(ctx context.Context, topics []string) (engine.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.played {
		return nil, ErrReplayDone
	}
	rc, err := t.open()
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	t.played = true

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	slog.Info("Replay started", slog.Int("topics", len(topics)))
	return &replayConn{t: t, rc: rc, sc: sc}, nil
}

// Sent reports how many frames the session wrote (heartbeats).
func (t *ReplayTransport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

type replayConn struct {
	t      *ReplayTransport
	rc     io.ReadCloser
	sc     *bufio.Scanner
	frames int
	closed bool
}

func (c *replayConn) ReadNext(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrStreamClosed
	}
	if c.t.delay > 0 && c.frames > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.t.delay):
		}
	}
	for c.sc.Scan() {
		line := bytes.TrimSpace(c.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		c.frames++
		return append([]byte(nil), line...), nil
	}
	if err := c.sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read recording: %w", engine.ErrTransport, err)
	}
	slog.Info("Replay reached end of recording", slog.Int("frames", c.frames))
	return nil, engine.ErrStreamClosed
}

func (c *replayConn) Send(ctx context.Context, frame []byte) error {
	c.t.mu.Lock()
	c.t.sent++
	c.t.mu.Unlock()
	return nil
}

func (c *replayConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rc.Close()
}

// Once is a reconnect policy that never retries: a replay ends when its
// recording does.
type Once struct{}

// Delay implements engine.Backoff.
func (Once) Delay(int) (time.Duration, bool) { return 0, false }
