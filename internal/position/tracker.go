// Package position tracks the single open position and the orders in flight.
package position

import (
	"fmt"
	"log/slog"

	"bytra_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Tracker is the single source of truth for the open position.
// State machine: Flat <-> Long, Flat <-> Short. There is no Long <-> Short edge.
type Tracker struct {
	symbol  string
	pos     domain.Position
	pending map[string]*domain.PendingOrder // keyed by link id

	stopLossPct decimal.Decimal // applied to positions opened by fills
}

// NewTracker creates a Flat tracker.
func NewTracker(symbol string, stopLossPct float64) *Tracker {
	return &Tracker{
		symbol:      symbol,
		pos:         domain.Position{Symbol: symbol, Side: domain.Flat},
		pending:     make(map[string]*domain.PendingOrder),
		stopLossPct: decimal.NewFromFloat(stopLossPct),
	}
}

// Open transitions Flat -> Long/Short. The stop-loss price is
// entry * (1 - pct) for Long and entry * (1 + pct) for Short.
func (t *Tracker) Open(side domain.PositionSide, entryPrice, quantity, stopLossPct decimal.Decimal) error {
	if !t.pos.IsFlat() {
		return fmt.Errorf("%w: open %s while %s", domain.ErrInvalidTransition, side, t.pos.Side)
	}
	if side != domain.Long && side != domain.Short {
		return fmt.Errorf("%w: open with side %q", domain.ErrInvalidTransition, side)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: open with quantity %s", domain.ErrInvalidTransition, quantity)
	}

	t.pos = domain.Position{
		Symbol:        t.symbol,
		Side:          side,
		EntryPrice:    entryPrice,
		Quantity:      quantity,
		StopLossPrice: StopLossPrice(side, entryPrice, stopLossPct),
	}
	slog.Info("Position opened",
		slog.String("side", string(side)),
		slog.String("entry", entryPrice.String()),
		slog.String("qty", quantity.String()),
		slog.String("stop_loss", t.pos.StopLossPrice.String()))
	return nil
}

// Close transitions Long/Short -> Flat.
func (t *Tracker) Close() error {
	if t.pos.IsFlat() {
		return fmt.Errorf("%w: close while flat", domain.ErrInvalidTransition)
	}
	slog.Info("Position closed", slog.String("side", string(t.pos.Side)))
	t.pos = domain.Position{Symbol: t.symbol, Side: domain.Flat}
	return nil
}

// StopLossPrice computes the protective price for a position.
func StopLossPrice(side domain.PositionSide, entry, pct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == domain.Short {
		return entry.Mul(one.Add(pct))
	}
	return entry.Mul(one.Sub(pct))
}

// IsLong checks if the position is Long.
func (t *Tracker) IsLong() bool { return t.pos.IsLong() }

// IsShort checks if the position is Short.
func (t *Tracker) IsShort() bool { return t.pos.IsShort() }

// IsFlat reports no exposure.
func (t *Tracker) IsFlat() bool { return t.pos.IsFlat() }

// Position returns a copy of the current position.
func (t *Tracker) Position() domain.Position { return t.pos }

// StopLossPct is the percentage used when fills open a position.
func (t *Tracker) StopLossPct() decimal.Decimal { return t.stopLossPct }

// Track registers an order that was accepted by the gateway.
func (t *Tracker) Track(req domain.OrderRequest, handle domain.OrderHandle) {
	t.pending[req.LinkID] = &domain.PendingOrder{
		Request:   req,
		Handle:    handle,
		FilledQty: decimal.Zero,
	}
}

// HasPending reports whether any order is still in flight.
func (t *Tracker) HasPending() bool { return len(t.pending) > 0 }

// Pending returns copies of the in-flight orders.
func (t *Tracker) Pending() []domain.PendingOrder {
	out := make([]domain.PendingOrder, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, *p)
	}
	return out
}

func (t *Tracker) lookup(ex domain.Execution) *domain.PendingOrder {
	if p, ok := t.pending[ex.LinkID]; ok && ex.LinkID != "" {
		return p
	}
	for _, p := range t.pending {
		if ex.OrderID != "" && p.Handle.OrderID == ex.OrderID {
			return p
		}
	}
	return nil
}

// Apply folds one execution update into the position.
// It returns false when the update does not concern a known order or the
// open position; such updates are ignored.
func (t *Tracker) Apply(ex domain.Execution) (bool, error) {
	if ex.Symbol != "" && ex.Symbol != t.symbol {
		return false, nil
	}

	p := t.lookup(ex)
	if p == nil {
		if ex.StopLoss && !t.pos.IsFlat() && ex.Kind != domain.ExecCancel {
			return true, t.reduce(ex.Qty, ex.Kind == domain.ExecFill)
		}
		return false, nil
	}

	if ex.Kind == domain.ExecCancel {
		delete(t.pending, p.Request.LinkID)
		slog.Info("Order canceled",
			slog.String("link_id", p.Request.LinkID),
			slog.String("filled", p.FilledQty.String()))
		return true, nil
	}

	p.FilledQty = p.FilledQty.Add(ex.Qty)
	done := ex.Kind == domain.ExecFill || !p.Remaining().IsPositive()
	if done {
		delete(t.pending, p.Request.LinkID)
	}

	switch p.Request.Purpose {
	case domain.PurposeEntry:
		return true, t.increase(p.Request.Side, ex.Price, ex.Qty)
	case domain.PurposeExit:
		return true, t.reduce(ex.Qty, done)
	default:
		return true, fmt.Errorf("order %s has unknown purpose %q", p.Request.LinkID, p.Request.Purpose)
	}
}

// increase opens the position on the first entry fill and grows it on
// later partial fills, keeping a volume-weighted entry price.
func (t *Tracker) increase(side domain.OrderSide, price, qty decimal.Decimal) error {
	dir := domain.Long
	if side == domain.SideSell {
		dir = domain.Short
	}

	if t.pos.IsFlat() {
		return t.Open(dir, price, qty, t.stopLossPct)
	}
	if t.pos.Side != dir {
		return fmt.Errorf("%w: %s fill while %s", domain.ErrInvalidTransition, side, t.pos.Side)
	}

	total := t.pos.Quantity.Add(qty)
	t.pos.EntryPrice = t.pos.EntryPrice.Mul(t.pos.Quantity).Add(price.Mul(qty)).Div(total)
	t.pos.Quantity = total
	t.pos.StopLossPrice = StopLossPrice(dir, t.pos.EntryPrice, t.stopLossPct)
	return nil
}

// reduce shrinks the position; final closes it regardless of rounding.
func (t *Tracker) reduce(qty decimal.Decimal, final bool) error {
	if t.pos.IsFlat() {
		return fmt.Errorf("%w: exit fill while flat", domain.ErrInvalidTransition)
	}
	remaining := t.pos.Quantity.Sub(qty)
	if final || !remaining.IsPositive() {
		return t.Close()
	}
	t.pos.Quantity = remaining
	return nil
}

// State is a copy of the tracker contents, used for snapshots.
type State struct {
	Position domain.Position                 `json:"position"`
	Pending  map[string]domain.PendingOrder `json:"pending"`
}

// State copies the tracker contents.
func (t *Tracker) State() State {
	pending := make(map[string]domain.PendingOrder, len(t.pending))
	for k, p := range t.pending {
		pending[k] = *p
	}
	return State{Position: t.pos, Pending: pending}
}
