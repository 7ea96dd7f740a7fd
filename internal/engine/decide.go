package engine

import (
	"context"
	"log/slog"

	"bytra_go/internal/domain"
	"bytra_go/internal/event"
	"bytra_go/internal/position"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newLinkID() string { return uuid.NewString() }

// Warm reports whether every required timeframe has its full closed history.
func (s *Session) Warm() bool {
	for _, tf := range s.profile.TimeFrames {
		if s.store.ClosedCount(tf.Unit) < tf.RequiredHistoryLength {
			return false
		}
	}
	return true
}

// EvaluateAndAct asks the strategy for a decision and emits at most one
// order action. Entries go out only when Flat, exits only when Long or
// Short, and nothing goes out while the history is short or an order is
// still pending.
func (s *Session) EvaluateAndAct(ctx context.Context) {
	if !s.Warm() {
		slog.Debug("Warm-up incomplete, skipping evaluation")
		return
	}
	if s.tracker.HasPending() {
		slog.Debug("Order pending, skipping evaluation")
		return
	}

	pos := s.tracker.Position()
	if pos.IsFlat() {
		long := s.strat.CheckLongEntry(s.store)
		short := s.strat.CheckShortEntry(s.store)
		switch {
		case long && short:
			slog.Warn("Conflicting entry signals, holding")
		case long:
			s.enter(ctx, domain.Long)
		case short:
			s.enter(ctx, domain.Short)
		}
		return
	}

	if s.strat.CheckExit(s.store, pos) {
		s.exit(ctx, pos)
	}
}

func (s *Session) refPrice() (decimal.Decimal, bool) {
	if len(s.profile.TimeFrames) == 0 {
		return decimal.Zero, false
	}
	last, err := s.store.ClosedCandles(s.profile.TimeFrames[0].Unit, 1)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(last[0].Close), true
}

func (s *Session) enter(ctx context.Context, side domain.PositionSide) {
	ref, ok := s.refPrice()
	if !ok {
		slog.Warn("No reference price, entry skipped")
		return
	}
	req := domain.OrderRequest{
		LinkID:    s.newID(),
		Symbol:    s.profile.Symbol,
		Side:      side.EntrySide(),
		Type:      s.profile.OrderType,
		Purpose:   domain.PurposeEntry,
		Qty:       s.profile.Qty,
		RefPrice:  ref,
		Slippage:  s.profile.Slippage,
		CreatedAt: s.clock.Now(),
	}
	entry := req.LimitPrice()
	if req.Type == domain.OrderTypeMarket {
		entry = ref
	}
	req.StopLoss = position.StopLossPrice(side, entry, s.tracker.StopLossPct()).Round(2)

	slog.Info("Entry signal",
		slog.String("side", string(side)),
		slog.String("ref_price", ref.String()),
		slog.String("stop_loss", req.StopLoss.String()))
	s.place(ctx, req)
}

func (s *Session) exit(ctx context.Context, pos domain.Position) {
	ref, _ := s.refPrice()
	req := domain.OrderRequest{
		LinkID:     s.newID(),
		Symbol:     s.profile.Symbol,
		Side:       pos.Side.ExitSide(),
		Type:       s.profile.OrderType,
		Purpose:    domain.PurposeExit,
		Qty:        pos.Quantity,
		RefPrice:   ref,
		Slippage:   s.profile.Slippage,
		ReduceOnly: true,
		CreatedAt:  s.clock.Now(),
	}
	slog.Info("Exit signal",
		slog.String("side", string(pos.Side)),
		slog.String("ref_price", ref.String()),
		slog.String("qty", pos.Quantity.String()))
	s.place(ctx, req)
}

func (s *Session) place(ctx context.Context, req domain.OrderRequest) {
	handle, err := s.deps.Gateway.PlaceOrder(ctx, req)
	action := &event.OrderAction{
		BaseEvent: event.BaseEvent{Ts: s.clock.Now()},
		Action:    "place",
		Request:   req,
		Handle:    handle,
	}
	if err != nil {
		action.Error = err.Error()
		s.record(ctx, action)
		slog.Error("Order placement failed",
			slog.String("link_id", req.LinkID),
			slog.String("side", string(req.Side)),
			slog.Any("error", err))
		return
	}
	if handle.LinkID == "" {
		handle.LinkID = req.LinkID
	}
	s.tracker.Track(req, handle)
	s.record(ctx, action)
}

// CancelPending cancels every in-flight order. Used on shutdown.
func (s *Session) CancelPending(ctx context.Context) {
	for _, p := range s.tracker.Pending() {
		err := s.deps.Gateway.CancelOrder(ctx, p.Handle)
		action := &event.OrderAction{
			BaseEvent: event.BaseEvent{Ts: s.clock.Now()},
			Action:    "cancel",
			Request:   p.Request,
			Handle:    p.Handle,
		}
		if err != nil {
			action.Error = err.Error()
			slog.Warn("Cancel failed", slog.String("order_id", p.Handle.OrderID), slog.Any("error", err))
		}
		s.record(ctx, action)
	}
}
