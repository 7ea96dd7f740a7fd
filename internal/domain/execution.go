package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionKind classifies an execution update.
type ExecutionKind string

const (
	ExecFill        ExecutionKind = "FILL"         // order fully filled by this execution
	ExecPartialFill ExecutionKind = "PARTIAL_FILL" // quantity still resting after this execution
	ExecCancel      ExecutionKind = "CANCEL"       // canceled or rejected, nothing more will fill
)

// Execution is a fill, partial fill or cancel reported by the exchange.
type Execution struct {
	OrderID   string          `json:"order_id"`
	LinkID    string          `json:"link_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Kind      ExecutionKind   `json:"kind"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`        // quantity of this execution
	LeavesQty decimal.Decimal `json:"leaves_qty"` // quantity still open on the order
	StopLoss  bool            `json:"stop_loss"`  // generated by an exchange-side stop-loss
	Time      time.Time       `json:"time"`
}
