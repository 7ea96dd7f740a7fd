package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"bytra_go/internal/engine"

	"github.com/gorilla/websocket"
)

// Handshake runs right after the dial, before the connection is handed to
// the session: authentication and topic subscription.
type Handshake func(ctx context.Context, c *WSConn, topics []string) error

// WSTransport dials the exchange stream. It implements engine.Transport.
//
// With PrivateURL set, topics for which IsPrivate reports true go to a second
// authenticated socket and both sockets are read as one engine.Conn.
type WSTransport struct {
	URL          string
	UserAgent    string
	Handshake    Handshake
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration // 0 = no read deadline

	PrivateURL       string
	PrivateHandshake Handshake
	IsPrivate        func(topic string) bool
}

// NewWSTransport creates a transport with default timeouts.
func NewWSTransport(url string, hs Handshake) *WSTransport {
	return &WSTransport{
		URL:          url,
		UserAgent:    GetPlatformUserAgent(""),
		Handshake:    hs,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Connect dials the public stream and, when private topics are asked for,
// the private one. Either failing closes both.
func (t *WSTransport) Connect(ctx context.Context, topics []string) (engine.Conn, error) {
	public, private := t.split(topics)

	pub, err := t.dial(ctx, t.URL, t.Handshake, public)
	if err != nil {
		return nil, err
	}
	if len(private) == 0 {
		return pub, nil
	}

	priv, err := t.dial(ctx, t.PrivateURL, t.PrivateHandshake, private)
	if err != nil {
		pub.Close()
		return nil, err
	}
	return &mergedConn{public: pub, private: priv}, nil
}

func (t *WSTransport) split(topics []string) (public, private []string) {
	if t.PrivateURL == "" || t.IsPrivate == nil {
		return topics, nil
	}
	for _, topic := range topics {
		if t.IsPrivate(topic) {
			private = append(private, topic)
		} else {
			public = append(public, topic)
		}
	}
	return public, private
}

// dial connects url, starts the reader and runs hs.
func (t *WSTransport) dial(ctx context.Context, url string, hs Handshake, topics []string) (*WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.DialTimeout}
	header := make(http.Header)
	header.Set("User-Agent", t.UserAgent)

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := newWSConn(conn, t.WriteTimeout, t.ReadTimeout)
	if hs != nil {
		if err := hs(ctx, c, topics); err != nil {
			c.Close()
			return nil, fmt.Errorf("handshake %s failed: %w", url, err)
		}
	}

	slog.Info("WS Connected", slog.String("url", url), slog.Int("topics", len(topics)))
	return c, nil
}

// mergedConn reads the public and private sockets as one stream. The end of
// either ends the stream. Heartbeats go to both.
type mergedConn struct {
	public  *WSConn
	private *WSConn
}

func (m *mergedConn) ReadNext(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-m.public.msgs:
		return msg, nil
	case msg := <-m.private.msgs:
		return msg, nil
	case <-m.public.dead:
		return nil, m.public.err
	case <-m.private.dead:
		return nil, m.private.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mergedConn) Send(ctx context.Context, frame []byte) error {
	if err := m.public.Send(ctx, frame); err != nil {
		return err
	}
	return m.private.Send(ctx, frame)
}

func (m *mergedConn) Close() error {
	return errors.Join(m.public.Close(), m.private.Close())
}

// WSConn is one websocket connection. A single reader goroutine owns all
// reads; ReadNext hands frames over a channel so cancelling a read never
// touches the socket.
type WSConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	readTimeout  time.Duration

	msgs chan []byte
	dead chan struct{} // closed when the reader stops; err is set before
	err  error

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, writeTimeout, readTimeout time.Duration) *WSConn {
	c := &WSConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		readTimeout:  readTimeout,
		msgs:         make(chan []byte),
		dead:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *WSConn) readLoop() {
	defer close(c.dead)
	for {
		if c.readTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.err = c.classify(err)
			return
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			c.err = engine.ErrStreamClosed
			return
		}
	}
}

func (c *WSConn) classify(err error) error {
	select {
	case <-c.done:
		return engine.ErrStreamClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return engine.ErrStreamClosed
	}
	return fmt.Errorf("%w: %w", engine.ErrTransport, err)
}

// ReadNext implements engine.Conn.
func (c *WSConn) ReadNext(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	case <-c.dead:
		return nil, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes one text frame.
func (c *WSConn) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write: %w", engine.ErrTransport, err)
	}
	return nil
}

// Close sends a close frame and releases the socket. Idempotent.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
