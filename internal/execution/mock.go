package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bytra_go/internal/domain"
)

// MockGateway records orders and never talks to an exchange.
type MockGateway struct {
	mu       sync.Mutex
	placed   []domain.OrderRequest
	canceled []domain.OrderHandle
	seq      int

	// PlaceErr, when set, is returned by PlaceOrder.
	PlaceErr error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PlaceErr != nil {
		return domain.OrderHandle{}, m.PlaceErr
	}
	m.seq++
	m.placed = append(m.placed, req)

	slog.Info("MOCK EXECUTION: Place Order",
		slog.String("link_id", req.LinkID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("qty", req.Qty.String()))
	return domain.OrderHandle{OrderID: fmt.Sprintf("mock-%d", m.seq), LinkID: req.LinkID}, nil
}

func (m *MockGateway) CancelOrder(ctx context.Context, handle domain.OrderHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, handle)
	slog.Info("MOCK EXECUTION: Cancel Order", slog.String("order_id", handle.OrderID))
	return nil
}

// Placed returns a copy of every accepted request.
func (m *MockGateway) Placed() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderRequest, len(m.placed))
	copy(out, m.placed)
	return out
}

// Canceled returns a copy of every cancel request.
func (m *MockGateway) Canceled() []domain.OrderHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderHandle, len(m.canceled))
	copy(out, m.canceled)
	return out
}
