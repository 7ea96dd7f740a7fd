// Package bybit implements the Bybit v5 wire contract: stream topics and
// frames, the frame decoder, and the REST client used for orders, book
// snapshots and kline history.
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bytra_go/internal/domain"
	"bytra_go/internal/event"

	"github.com/shopspring/decimal"
)

// Codec encodes subscriptions and decodes stream frames. It implements
// engine.Codec.
type Codec struct {
	Depth   int  // order book depth of the subscribed topic
	Private bool // subscribe to execution and order topics
}

// NewCodec returns a codec for the given book depth.
func NewCodec(depth int, private bool) *Codec {
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Codec{Depth: depth, Private: private}
}

// Topics lists the stream topics for one symbol.
func (c *Codec) Topics(symbol string, timeframes []string) []string {
	topics := make([]string, 0, len(timeframes)+3)
	for _, tf := range timeframes {
		topics = append(topics, fmt.Sprintf("%s.%s.%s", topicKline, tf, symbol))
	}
	topics = append(topics, fmt.Sprintf("%s.%d.%s", topicOrderBook, c.Depth, symbol))
	if c.Private {
		topics = append(topics, topicExecution, topicOrder)
	}
	return topics
}

// IsPrivateTopic reports whether topic is served by the authenticated
// private stream rather than the public market data stream.
func IsPrivateTopic(topic string) bool {
	name, _, _ := strings.Cut(topic, ".")
	return name == topicExecution || name == topicOrder
}

// Heartbeat returns the keep-alive frame.
func (c *Codec) Heartbeat() []byte {
	return []byte(`{"op":"ping"}`)
}

// SubscribeFrame builds the subscribe request for topics.
func (c *Codec) SubscribeFrame(topics []string) ([]byte, error) {
	args := make([]any, len(topics))
	for i, t := range topics {
		args[i] = t
	}
	return json.Marshal(request{Op: opSubscribe, Args: args})
}

// Decode turns one frame into an event. Frames that carry nothing for the
// session (order status changes other than cancels) decode to nil.
func (c *Codec) Decode(raw []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	ts := time.UnixMilli(env.Ts).UTC()

	if env.Topic == "" {
		return c.decodeOp(env, ts)
	}

	name, rest, _ := strings.Cut(env.Topic, ".")
	switch name {
	case topicKline:
		return decodeKline(env, rest, ts)
	case topicOrderBook:
		return decodeOrderBook(env, ts)
	case topicExecution:
		return decodeExecutions(env.Data, ts)
	case topicOrder:
		return decodeOrders(env.Data, ts)
	}
	return nil, fmt.Errorf("%w: %s", event.ErrUnknownTopic, env.Topic)
}

func (c *Codec) decodeOp(env envelope, ts time.Time) (event.Event, error) {
	ok := env.Success == nil || *env.Success
	switch env.Op {
	case opPing, opPong:
		return &event.HeartbeatAckEvent{BaseEvent: event.BaseEvent{Ts: ts}}, nil
	case opSubscribe:
		return &event.SubscribeAckEvent{BaseEvent: event.BaseEvent{Ts: ts}, Success: ok, Message: env.RetMsg}, nil
	case opAuth:
		return &event.AuthAckEvent{BaseEvent: event.BaseEvent{Ts: ts}, Success: ok, Message: env.RetMsg}, nil
	}
	return nil, fmt.Errorf("%w: op %q", event.ErrUnknownTopic, env.Op)
}

// decodeKline reads "kline.{interval}.{symbol}". Only the last entry of
// the data array is used; earlier entries are older states of the same
// or the previous bar and arrive sealed on their own.
func decodeKline(env envelope, rest string, ts time.Time) (event.Event, error) {
	tf, symbol, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownTopic, env.Topic)
	}
	var rows []klineData
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("decode kline: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("decode kline: empty data")
	}
	k := rows[len(rows)-1]

	candle := domain.Candle{
		OpenTime: time.UnixMilli(k.Start).UTC(),
		IsClosed: k.Confirm,
	}
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&candle.Open, k.Open},
		{&candle.High, k.High},
		{&candle.Low, k.Low},
		{&candle.Close, k.Close},
		{&candle.Volume, k.Volume},
	} {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return nil, fmt.Errorf("decode kline: %w", err)
		}
		*f.dst = v
	}

	return &event.CandleEvent{
		BaseEvent: event.BaseEvent{Ts: ts},
		Symbol:    symbol,
		Timeframe: tf,
		Candle:    candle,
	}, nil
}

func decodeOrderBook(env envelope, ts time.Time) (event.Event, error) {
	var d orderBookData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, fmt.Errorf("decode orderbook: %w", err)
	}

	switch env.Type {
	case "snapshot":
		snap, err := toSnapshot(d.Symbol, d.Bids, d.Asks, d.U)
		if err != nil {
			return nil, err
		}
		return &event.BookSnapshotEvent{BaseEvent: event.BaseEvent{Ts: ts}, Snapshot: snap}, nil
	case "delta":
		changes := make([]event.LevelChange, 0, len(d.Bids)+len(d.Asks))
		for _, side := range []struct {
			side   domain.BookSide
			levels [][2]string
		}{{domain.BookBid, d.Bids}, {domain.BookAsk, d.Asks}} {
			levels, err := parseLevels(side.levels)
			if err != nil {
				return nil, err
			}
			for _, l := range levels {
				changes = append(changes, event.LevelChange{Side: side.side, Level: l})
			}
		}
		return &event.BookDeltaEvent{
			BaseEvent: event.BaseEvent{Ts: ts},
			Symbol:    d.Symbol,
			Changes:   changes,
			UpdateID:  d.U,
		}, nil
	}
	return nil, fmt.Errorf("decode orderbook: unknown type %q", env.Type)
}

func toSnapshot(symbol string, bids, asks [][2]string, u int64) (domain.BookSnapshot, error) {
	b, err := parseLevels(bids)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	a, err := parseLevels(asks)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	return domain.BookSnapshot{Symbol: symbol, Bids: b, Asks: a, UpdateID: u}, nil
}

func parseLevels(raw [][2]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", r[0], err)
		}
		size, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", r[1], err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

func decodeExecutions(data json.RawMessage, ts time.Time) (event.Event, error) {
	var rows []executionData
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode execution: %w", err)
	}

	execs := make([]domain.Execution, 0, len(rows))
	for _, r := range rows {
		// funding and settlement rows carry no order quantity
		if r.ExecType != "" && r.ExecType != "Trade" {
			continue
		}
		price, err := decimal.NewFromString(r.ExecPrice)
		if err != nil {
			return nil, fmt.Errorf("decode execution price: %w", err)
		}
		qty, err := decimal.NewFromString(r.ExecQty)
		if err != nil {
			return nil, fmt.Errorf("decode execution qty: %w", err)
		}
		leaves := decimal.Zero
		if r.LeavesQty != "" {
			if leaves, err = decimal.NewFromString(r.LeavesQty); err != nil {
				return nil, fmt.Errorf("decode execution leaves: %w", err)
			}
		}

		kind := domain.ExecFill
		if leaves.IsPositive() {
			kind = domain.ExecPartialFill
		}
		execs = append(execs, domain.Execution{
			OrderID:   r.OrderID,
			LinkID:    r.OrderLinkID,
			Symbol:    r.Symbol,
			Side:      domain.OrderSide(r.Side),
			Kind:      kind,
			Price:     price,
			Qty:       qty,
			LeavesQty: leaves,
			StopLoss:  isStopLoss(r.StopOrderType),
			Time:      millisOr(r.ExecTime, ts),
		})
	}
	if len(execs) == 0 {
		return nil, nil
	}
	return &event.ExecutionEvent{BaseEvent: event.BaseEvent{Ts: ts}, Executions: execs}, nil
}

// decodeOrders keeps only terminal non-fill states. Fills are reported on
// the execution topic.
func decodeOrders(data json.RawMessage, ts time.Time) (event.Event, error) {
	var rows []orderData
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	var execs []domain.Execution
	for _, r := range rows {
		switch r.OrderStatus {
		case "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		default:
			continue
		}
		execs = append(execs, domain.Execution{
			OrderID:   r.OrderID,
			LinkID:    r.OrderLinkID,
			Symbol:    r.Symbol,
			Side:      domain.OrderSide(r.Side),
			Kind:      domain.ExecCancel,
			Qty:       decimal.Zero,
			LeavesQty: decimal.Zero,
			StopLoss:  isStopLoss(r.StopOrderType),
			Time:      millisOr(r.UpdatedTime, ts),
		})
	}
	if len(execs) == 0 {
		return nil, nil
	}
	return &event.ExecutionEvent{BaseEvent: event.BaseEvent{Ts: ts}, Executions: execs}, nil
}

func isStopLoss(stopOrderType string) bool {
	return stopOrderType == "StopLoss" || stopOrderType == "TrailingStop"
}

func millisOr(s string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}
