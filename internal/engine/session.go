package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"bytra_go/internal/domain"
	"bytra_go/internal/event"
	"bytra_go/internal/execution"
	"bytra_go/internal/market"
	"bytra_go/internal/position"
	"bytra_go/internal/strategy"
)

// ConnState is the connection lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// SessionState drives the maintenance timers.
type SessionState struct {
	Conn                ConnState
	LastHeartbeatAt     time.Time
	LastOrderBookSyncAt time.Time
}

// PumpResult says which unit of work one PumpOnce call applied.
type PumpResult int

const (
	PumpIdle         PumpResult = iota // woke up with nothing to do
	PumpEvent                          // applied one decoded event or fill
	PumpDropped                        // consumed a frame that was logged and dropped
	PumpHeartbeat                      // sent a heartbeat
	PumpResync                         // ran an order-book resync
	PumpStreamClosed                   // peer ended the stream, reconnect
)

func (r PumpResult) String() string {
	switch r {
	case PumpEvent:
		return "event"
	case PumpDropped:
		return "dropped"
	case PumpHeartbeat:
		return "heartbeat"
	case PumpResync:
		return "resync"
	case PumpStreamClosed:
		return "stream_closed"
	}
	return "idle"
}

// Config holds the session timers.
type Config struct {
	HeartbeatInterval time.Duration
	ResyncInterval    time.Duration
	ResyncRetry       time.Duration // delay before retrying a failed resync
	BookDepth         int
}

// DefaultConfig is 45s heartbeat, hourly resync, 50-level book.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 45 * time.Second,
		ResyncInterval:    3600 * time.Second,
		ResyncRetry:       time.Minute,
		BookDepth:         50,
	}
}

// Deps are the session's collaborators. Transport, Codec and Gateway are
// required, the rest are optional.
type Deps struct {
	Transport Transport
	Codec     Codec
	Gateway   execution.Gateway
	Books     BookSource
	History   HistorySource
	Journal   Journal
	Clock     Clock
}

// Session owns one logical exchange connection and everything decided on it.
// It is driven by a single goroutine calling PumpOnce; nothing inside is locked.
type Session struct {
	cfg     Config
	deps    Deps
	clock   Clock
	strat   strategy.Strategy
	profile strategy.Profile

	store   *market.Store
	tracker *position.Tracker

	conn   Conn
	state  SessionState
	fills  <-chan domain.Execution
	queued []domain.Execution
	newID  func() string
}

// NewSession wires a session for strat. Market data and position state are
// created here and survive every reconnect.
func NewSession(cfg Config, strat strategy.Strategy, deps Deps) (*Session, error) {
	if strat == nil {
		return nil, errors.New("session requires a strategy")
	}
	if deps.Transport == nil || deps.Codec == nil || deps.Gateway == nil {
		return nil, errors.New("session requires transport, codec and gateway")
	}
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = def.ResyncInterval
	}
	if cfg.ResyncRetry <= 0 || cfg.ResyncRetry > cfg.ResyncInterval {
		cfg.ResyncRetry = min(def.ResyncRetry, cfg.ResyncInterval)
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = def.BookDepth
	}

	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	profile := strat.Profile()

	s := &Session{
		cfg:     cfg,
		deps:    deps,
		clock:   clock,
		strat:   strat,
		profile: profile,
		store:   market.NewStore(profile.Symbol),
		tracker: position.NewTracker(profile.Symbol, profile.StopLossPct),
		newID:   newLinkID,
	}
	if src, ok := deps.Gateway.(execution.FillSource); ok {
		s.fills = src.Fills()
	}
	return s, nil
}

// Store exposes the market data store.
func (s *Session) Store() *market.Store { return s.store }

// Tracker exposes the position tracker.
func (s *Session) Tracker() *position.Tracker { return s.tracker }

// State returns the connection state and timers.
func (s *Session) State() SessionState { return s.state }

// IsConnected reports liveness without side effects.
func (s *Session) IsConnected() bool { return s.state.Conn == Connected }

func (s *Session) timeframes() []string {
	out := make([]string, 0, len(s.profile.TimeFrames))
	for _, tf := range s.profile.TimeFrames {
		out = append(out, tf.Unit)
	}
	return out
}

// Connect establishes the transport and subscribes to candles for every
// required timeframe, the order book and executions. Failures come back as
// *ConnectionError. Timers restart on success.
func (s *Session) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}
	s.state.Conn = Connecting

	topics := s.deps.Codec.Topics(s.profile.Symbol, s.timeframes())
	conn, err := s.deps.Transport.Connect(ctx, topics)
	if err != nil {
		s.state.Conn = Disconnected
		return &ConnectionError{Op: "connect", Err: err}
	}

	now := s.clock.Now()
	s.conn = conn
	s.state = SessionState{Conn: Connected, LastHeartbeatAt: now, LastOrderBookSyncAt: now}
	slog.Info("Session connected",
		slog.String("symbol", s.profile.Symbol),
		slog.Int("topics", len(topics)))

	s.backfill(ctx)
	return nil
}

// Disconnect releases the transport. Safe to call repeatedly.
func (s *Session) Disconnect() error {
	s.state.Conn = Disconnected
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	slog.Info("Session disconnected")
	return nil
}

// backfill pulls history for timeframes that are short of warm-up or whose
// newest candle is more than one interval old. A gap that cannot be filled
// discards the series so the warm-up gate holds trading until fresh history
// has built up.
func (s *Session) backfill(ctx context.Context) {
	now := s.clock.Now()
	for _, tf := range s.profile.TimeFrames {
		have := s.store.ClosedCount(tf.Unit)
		behind := s.periodsBehind(tf.Unit, now)
		if have >= tf.RequiredHistoryLength && behind == 0 {
			continue
		}
		if s.deps.History == nil {
			s.discardGap(tf.Unit, behind)
			continue
		}

		// one extra for the candle still open
		limit := max(tf.RequiredHistoryLength-have, min(behind, tf.RequiredHistoryLength)) + 1
		candles, err := s.deps.History.FetchCandles(ctx, s.profile.Symbol, tf.Unit, limit)
		if err != nil {
			slog.Warn("History backfill failed",
				slog.String("timeframe", tf.Unit),
				slog.Any("error", err))
			s.discardGap(tf.Unit, behind)
			continue
		}
		skipped := 0
		for _, c := range candles {
			if _, err := s.store.AppendOrUpdateCandle(tf.Unit, c); err != nil {
				skipped++
			}
		}
		s.discardGap(tf.Unit, s.periodsBehind(tf.Unit, now))
		slog.Info("History backfilled",
			slog.String("timeframe", tf.Unit),
			slog.Int("fetched", len(candles)),
			slog.Int("skipped", skipped),
			slog.Int("behind", behind),
			slog.Int("closed", s.store.ClosedCount(tf.Unit)))
	}
	s.RemoveUnusedCandles()
}

// periodsBehind counts the periods begun since the newest candle's period,
// zero while that period is still running or the interval is unknown.
func (s *Session) periodsBehind(timeframe string, now time.Time) int {
	last, ok := s.store.Latest(timeframe)
	if !ok {
		return 0
	}
	iv, ok := domain.Interval(timeframe)
	if !ok {
		return 0
	}
	elapsed := now.Sub(last.OpenTime)
	if elapsed <= iv {
		return 0
	}
	return int(elapsed / iv)
}

// discardGap empties the series once at least one whole period went unseen.
// A single period behind is the boundary the live stream is about to cover.
func (s *Session) discardGap(timeframe string, behind int) {
	if behind < 2 {
		return
	}
	n := s.store.Reset(timeframe)
	slog.Warn("Candle gap not filled, history discarded",
		slog.String("timeframe", timeframe),
		slog.Int("behind", behind),
		slog.Int("discarded", n))
}

// heartbeatDue reports whether more than HeartbeatInterval has passed.
func (s *Session) heartbeatDue(now time.Time) bool {
	return now.Sub(s.state.LastHeartbeatAt) > s.cfg.HeartbeatInterval
}

func (s *Session) resyncDue(now time.Time) bool {
	return now.Sub(s.state.LastOrderBookSyncAt) >= s.cfg.ResyncInterval
}

// nextMaintenance is how long until the earliest timer is due.
func (s *Session) nextMaintenance(now time.Time) time.Duration {
	// first instant the heartbeat is overdue
	hb := s.state.LastHeartbeatAt.Add(s.cfg.HeartbeatInterval + time.Nanosecond)
	rs := s.state.LastOrderBookSyncAt.Add(s.cfg.ResyncInterval)
	next := hb
	if rs.Before(next) {
		next = rs
	}
	return max(next.Sub(now), 0)
}

// PumpOnce applies exactly one unit of work: a due heartbeat, a due resync,
// one queued fill or one inbound frame. It blocks until a frame arrives or
// a timer falls due. A peer close is reported as PumpStreamClosed with a nil
// error; only transport faults and ctx cancellation return an error.
func (s *Session) PumpOnce(ctx context.Context) (PumpResult, error) {
	if !s.IsConnected() {
		return PumpIdle, ErrNotConnected
	}

	if res, ok, err := s.maintain(ctx); ok {
		return res, err
	}
	if res, ok := s.drainFill(ctx); ok {
		return res, nil
	}

	raw, err := s.read(ctx, s.nextMaintenance(s.clock.Now()))
	switch {
	case err == nil:
		return s.handleFrame(ctx, raw), nil
	case errors.Is(err, ErrStreamClosed):
		slog.Info("Stream closed by peer")
		return PumpStreamClosed, nil
	case ctx.Err() != nil:
		return PumpIdle, ctx.Err()
	case errors.Is(err, context.Canceled):
		// woken by a timer or a fill
		if res, ok, err := s.maintain(ctx); ok {
			return res, err
		}
		if res, ok := s.drainFill(ctx); ok {
			return res, nil
		}
		return PumpIdle, nil
	case errors.Is(err, ErrTransport):
		return PumpIdle, err
	default:
		return PumpIdle, fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

func (s *Session) maintain(ctx context.Context) (PumpResult, bool, error) {
	now := s.clock.Now()
	if s.heartbeatDue(now) {
		return PumpHeartbeat, true, s.SendHeartbeat(ctx)
	}
	if s.resyncDue(now) {
		// resync failures are absorbed and retried later
		_ = s.SyncOrderBook(ctx)
		return PumpResync, true, nil
	}
	return PumpIdle, false, nil
}

func (s *Session) drainFill(ctx context.Context) (PumpResult, bool) {
	if len(s.queued) == 0 && s.fills != nil {
		select {
		case ex := <-s.fills:
			s.queued = append(s.queued, ex)
		default:
		}
	}
	if len(s.queued) == 0 {
		return PumpIdle, false
	}
	ex := s.queued[0]
	s.queued = s.queued[1:]
	s.applyExecutions(ctx, []domain.Execution{ex})
	return PumpEvent, true
}

// read waits for one frame for at most wait. A fill arriving first is
// queued and interrupts the read.
func (s *Session) read(ctx context.Context, wait time.Duration) ([]byte, error) {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	woke := make(chan domain.Execution, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-s.clock.After(wait):
			cancel()
		case ex := <-s.fills:
			woke <- ex
			cancel()
		case <-readCtx.Done():
		}
	}()

	raw, err := s.conn.ReadNext(readCtx)
	cancel()
	wg.Wait()

	select {
	case ex := <-woke:
		s.queued = append(s.queued, ex)
	default:
	}
	return raw, err
}

func (s *Session) handleFrame(ctx context.Context, raw []byte) PumpResult {
	ev, err := s.deps.Codec.Decode(raw)
	if err != nil {
		if errors.Is(err, event.ErrUnknownTopic) {
			slog.Warn("Ignoring unknown topic", slog.Any("error", err))
		} else {
			slog.Warn("Dropping undecodable frame", slog.Any("error", err))
		}
		return PumpDropped
	}
	if ev == nil {
		return PumpDropped
	}
	return s.Apply(ctx, ev)
}

// Apply folds one decoded event into session state.
func (s *Session) Apply(ctx context.Context, ev event.Event) PumpResult {
	switch e := ev.(type) {
	case *event.CandleEvent:
		return s.applyCandle(ctx, e)
	case *event.BookSnapshotEvent:
		if err := s.store.ReplaceBook(e.Snapshot); err != nil {
			slog.Warn("Dropping book snapshot", slog.Any("error", err))
			return PumpDropped
		}
	case *event.BookDeltaEvent:
		return s.applyDelta(e)
	case *event.ExecutionEvent:
		s.applyExecutions(ctx, e.Executions)
	case *event.HeartbeatAckEvent:
		slog.Debug("Heartbeat acknowledged")
	case *event.SubscribeAckEvent:
		if !e.Success {
			slog.Warn("Subscription rejected", slog.String("message", e.Message))
		}
	case *event.AuthAckEvent:
		if !e.Success {
			slog.Warn("Authentication rejected", slog.String("message", e.Message))
		}
	default:
		slog.Warn("Unhandled event type", slog.String("type", ev.GetType().String()))
		return PumpDropped
	}
	return PumpEvent
}

func (s *Session) applyCandle(ctx context.Context, e *event.CandleEvent) PumpResult {
	if e.Symbol != "" && e.Symbol != s.profile.Symbol {
		return PumpDropped
	}
	sealed, err := s.store.AppendOrUpdateCandle(e.Timeframe, e.Candle)
	if err != nil {
		slog.Warn("Dropping candle",
			slog.String("timeframe", e.Timeframe),
			slog.Time("open_time", e.Candle.OpenTime),
			slog.Any("error", err))
		return PumpDropped
	}
	if sealed {
		s.EvaluateAndAct(ctx)
		s.RemoveUnusedCandles()
	}
	return PumpEvent
}

func (s *Session) applyDelta(e *event.BookDeltaEvent) PumpResult {
	if e.Symbol != "" && e.Symbol != s.profile.Symbol {
		return PumpDropped
	}
	book := s.store.Book()
	if e.UpdateID != 0 && e.UpdateID <= book.UpdateID() {
		slog.Debug("Skipping stale book delta",
			slog.Int64("update_id", e.UpdateID),
			slog.Int64("book_update_id", book.UpdateID()))
		return PumpDropped
	}
	// validate first so a bad level never leaves half a delta applied
	for _, ch := range e.Changes {
		if ch.Level.Size.IsNegative() || (ch.Side != domain.BookBid && ch.Side != domain.BookAsk) {
			slog.Warn("Dropping book delta",
				slog.String("side", ch.Side.String()),
				slog.String("price", ch.Level.Price.String()),
				slog.String("size", ch.Level.Size.String()))
			return PumpDropped
		}
	}
	for _, ch := range e.Changes {
		_ = s.store.ApplyBookDelta(ch.Side, ch.Level.Price, ch.Level.Size)
	}
	if e.UpdateID != 0 {
		book.SetUpdateID(e.UpdateID)
	}
	return PumpEvent
}

func (s *Session) applyExecutions(ctx context.Context, execs []domain.Execution) {
	for _, ex := range execs {
		ok, err := s.tracker.Apply(ex)
		if err != nil {
			slog.Warn("Execution not applied",
				slog.String("order_id", ex.OrderID),
				slog.String("link_id", ex.LinkID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			slog.Debug("Ignoring execution for unknown order", slog.String("order_id", ex.OrderID))
			continue
		}
		s.record(ctx, &event.ExecutionEvent{
			BaseEvent:  event.BaseEvent{Ts: s.clock.Now()},
			Executions: []domain.Execution{ex},
		})
	}
}

// SendHeartbeat emits a keep-alive frame and restarts the heartbeat timer.
func (s *Session) SendHeartbeat(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.Send(ctx, s.deps.Codec.Heartbeat()); err != nil {
		return fmt.Errorf("%w: heartbeat: %v", ErrTransport, err)
	}
	s.state.LastHeartbeatAt = s.clock.Now()
	slog.Debug("Heartbeat sent")
	return nil
}

// SyncOrderBook replaces the book with a fresh snapshot. On failure the old
// book stays and the next attempt is scheduled after ResyncRetry.
func (s *Session) SyncOrderBook(ctx context.Context) error {
	now := s.clock.Now()
	if s.deps.Books == nil {
		s.state.LastOrderBookSyncAt = now
		return nil
	}

	snap, err := s.deps.Books.FetchOrderBook(ctx, s.profile.Symbol, s.cfg.BookDepth)
	if err == nil {
		err = s.store.ReplaceBook(snap)
	}
	if err != nil {
		s.state.LastOrderBookSyncAt = now.Add(s.cfg.ResyncRetry - s.cfg.ResyncInterval)
		slog.Warn("Order book resync failed",
			slog.Duration("retry_in", s.cfg.ResyncRetry),
			slog.Any("error", err))
		return fmt.Errorf("sync order book: %w", err)
	}

	s.state.LastOrderBookSyncAt = now
	slog.Info("Order book resynced",
		slog.Int("bids", s.store.Book().Len(domain.BookBid)),
		slog.Int("asks", s.store.Book().Len(domain.BookAsk)))
	return nil
}

// RemoveUnusedCandles prunes every series to the history its timeframe needs.
// Series no timeframe asks for are emptied of closed candles.
func (s *Session) RemoveUnusedCandles() {
	keep := make(map[string]int, len(s.profile.TimeFrames))
	for _, tf := range s.profile.TimeFrames {
		keep[tf.Unit] = max(keep[tf.Unit], tf.RequiredHistoryLength)
	}
	for _, tf := range s.store.Timeframes() {
		if n := s.store.Prune(tf, keep[tf]); n > 0 {
			slog.Debug("Pruned candles", slog.String("timeframe", tf), slog.Int("removed", n))
		}
	}
}

// Snapshot is the deterministic JSON encoding of market and position state.
func (s *Session) Snapshot() ([]byte, error) {
	return json.Marshal(struct {
		Market   market.State   `json:"market"`
		Position position.State `json:"position"`
	}{
		Market:   s.store.State(),
		Position: s.tracker.State(),
	})
}

// DumpState writes Snapshot to filename for post-mortem.
func (s *Session) DumpState(filename string) {
	slog.Info("Dumping session state...", slog.String("file", filename))
	b, err := s.Snapshot()
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

func (s *Session) record(ctx context.Context, ev event.Event) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.Record(ctx, ev); err != nil {
		slog.Warn("Journal write failed",
			slog.String("type", ev.GetType().String()),
			slog.Any("error", err))
	}
}
