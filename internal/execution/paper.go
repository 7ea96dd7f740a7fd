package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bytra_go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperGateway simulates execution: every order fills in full at its limit
// price (or reference price for market orders). Fills are delivered through
// Fills(), never from inside PlaceOrder's caller frame.
type PaperGateway struct {
	mu     sync.Mutex
	fills  chan domain.Execution
	orders map[string]domain.OrderRequest // by order id, until filled
	now    func() time.Time
}

// NewPaperGateway creates a paper gateway with room for buffer undelivered fills.
func NewPaperGateway(buffer int) *PaperGateway {
	if buffer <= 0 {
		buffer = 16
	}
	return &PaperGateway{
		fills:  make(chan domain.Execution, buffer),
		orders: make(map[string]domain.OrderRequest),
		now:    time.Now,
	}
}

// Fills implements FillSource.
func (p *PaperGateway) Fills() <-chan domain.Execution { return p.fills }

// PlaceOrder accepts the order and queues its fill.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if !req.Qty.IsPositive() {
		return domain.OrderHandle{}, fmt.Errorf("paper order %s: quantity must be positive", req.LinkID)
	}

	price := req.LimitPrice()
	if req.Type == domain.OrderTypeMarket {
		price = req.RefPrice
	}

	handle := domain.OrderHandle{OrderID: "paper-" + uuid.NewString(), LinkID: req.LinkID, Symbol: req.Symbol}
	fill := domain.Execution{
		OrderID:   handle.OrderID,
		LinkID:    req.LinkID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Kind:      domain.ExecFill,
		Price:     price,
		Qty:       req.Qty,
		LeavesQty: decimal.Zero,
		Time:      p.now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case p.fills <- fill:
	default:
		return domain.OrderHandle{}, fmt.Errorf("paper order %s: fill queue full", req.LinkID)
	}
	p.orders[handle.OrderID] = req

	slog.Info("PAPER EXECUTION: Order Filled",
		slog.String("link_id", req.LinkID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("price", price.String()),
		slog.String("qty", req.Qty.String()))
	return handle, nil
}

// CancelOrder always fails: paper orders fill on placement.
func (p *PaperGateway) CancelOrder(ctx context.Context, handle domain.OrderHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[handle.OrderID]; !ok {
		return fmt.Errorf("order not found: %s", handle.OrderID)
	}
	return fmt.Errorf("cannot cancel filled order: %s", handle.OrderID)
}
