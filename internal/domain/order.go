package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide uses the exchange's spelling so it can go on the wire as is.
type OrderSide string

const (
	SideBuy  OrderSide = "Buy"
	SideSell OrderSide = "Sell"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeMarket OrderType = "Market"
)

// OrderPurpose tells the tracker how a fill of this order affects the position.
type OrderPurpose string

const (
	PurposeEntry OrderPurpose = "ENTRY"
	PurposeExit  OrderPurpose = "EXIT"
)

// OrderRequest is the order action handed to the execution gateway.
type OrderRequest struct {
	LinkID     string          `json:"link_id"` // client-generated, echoed back in execution updates
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"type"`
	Purpose    OrderPurpose    `json:"purpose"`
	Qty        decimal.Decimal `json:"qty"`
	RefPrice   decimal.Decimal `json:"ref_price"` // last closed price at decision time
	Slippage   decimal.Decimal `json:"slippage"`  // absolute price distance tolerated for limit orders
	StopLoss   decimal.Decimal `json:"stop_loss"` // zero when not set
	ReduceOnly bool            `json:"reduce_only"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LimitPrice is the reference price moved against us by the slippage,
// so a limit order still crosses the spread. Market orders return zero.
func (o OrderRequest) LimitPrice() decimal.Decimal {
	if o.Type == OrderTypeMarket {
		return decimal.Zero
	}
	if o.Side == SideBuy {
		return o.RefPrice.Add(o.Slippage)
	}
	return o.RefPrice.Sub(o.Slippage)
}

// OrderHandle identifies a placed order.
type OrderHandle struct {
	OrderID string `json:"order_id"` // exchange order id
	LinkID  string `json:"link_id"`
	Symbol  string `json:"symbol,omitempty"`
}

// PendingOrder is an order that was handed to the gateway and is not
// yet fully filled or canceled.
type PendingOrder struct {
	Request   OrderRequest    `json:"request"`
	Handle    OrderHandle     `json:"handle"`
	FilledQty decimal.Decimal `json:"filled_qty"`
}

// Remaining returns the unfilled quantity.
func (p *PendingOrder) Remaining() decimal.Decimal {
	return p.Request.Qty.Sub(p.FilledQty)
}
