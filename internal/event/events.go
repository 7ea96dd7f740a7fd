// Package event holds the typed messages decoded from the exchange stream
// and the records the session journals.
package event

import (
	"errors"
	"time"

	"bytra_go/internal/domain"
)

// ErrUnknownTopic marks a frame whose topic no handler understands.
// The session logs and drops such frames.
var ErrUnknownTopic = errors.New("unknown topic")

// Type defines the type of event.
type Type uint16

const (
	EvCandle Type = iota + 1
	EvBookSnapshot
	EvBookDelta
	EvExecution
	EvHeartbeatAck
	EvSubscribeAck
	EvAuthAck
	EvOrderAction
)

func (t Type) String() string {
	switch t {
	case EvCandle:
		return "candle"
	case EvBookSnapshot:
		return "book_snapshot"
	case EvBookDelta:
		return "book_delta"
	case EvExecution:
		return "execution"
	case EvHeartbeatAck:
		return "heartbeat_ack"
	case EvSubscribeAck:
		return "subscribe_ack"
	case EvAuthAck:
		return "auth_ack"
	case EvOrderAction:
		return "order_action"
	}
	return "unknown"
}

// Event is the interface for all stream and journal events.
type Event interface {
	GetType() Type
	GetTs() time.Time
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Ts time.Time `json:"ts"`
}

func (e BaseEvent) GetTs() time.Time { return e.Ts }

// CandleEvent is one kline update. Repeated updates for the same open time
// revise the forming candle.
type CandleEvent struct {
	BaseEvent
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Candle    domain.Candle `json:"candle"`
}

func (e CandleEvent) GetType() Type { return EvCandle }

// BookSnapshotEvent replaces the whole book.
type BookSnapshotEvent struct {
	BaseEvent
	Snapshot domain.BookSnapshot `json:"snapshot"`
}

func (e BookSnapshotEvent) GetType() Type { return EvBookSnapshot }

// LevelChange is one price level update. Size zero removes the level.
type LevelChange struct {
	Side  domain.BookSide  `json:"side"`
	Level domain.BookLevel `json:"level"`
}

// BookDeltaEvent is an incremental book update.
type BookDeltaEvent struct {
	BaseEvent
	Symbol   string        `json:"symbol"`
	Changes  []LevelChange `json:"changes"`
	UpdateID int64         `json:"update_id"`
}

func (e BookDeltaEvent) GetType() Type { return EvBookDelta }

// ExecutionEvent carries fills, partial fills and cancels for our orders.
type ExecutionEvent struct {
	BaseEvent
	Executions []domain.Execution `json:"executions"`
}

func (e ExecutionEvent) GetType() Type { return EvExecution }

// HeartbeatAckEvent is the exchange's answer to a ping.
type HeartbeatAckEvent struct {
	BaseEvent
}

func (e HeartbeatAckEvent) GetType() Type { return EvHeartbeatAck }

// SubscribeAckEvent confirms (or rejects) a subscription request.
type SubscribeAckEvent struct {
	BaseEvent
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e SubscribeAckEvent) GetType() Type { return EvSubscribeAck }

// AuthAckEvent confirms (or rejects) stream authentication.
type AuthAckEvent struct {
	BaseEvent
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e AuthAckEvent) GetType() Type { return EvAuthAck }

// OrderAction records an order the session sent (or tried to send).
type OrderAction struct {
	BaseEvent
	Action  string              `json:"action"` // place | cancel
	Request domain.OrderRequest `json:"request"`
	Handle  domain.OrderHandle  `json:"handle"`
	Error   string              `json:"error,omitempty"`
}

func (e OrderAction) GetType() Type { return EvOrderAction }
