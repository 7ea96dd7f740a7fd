package execution

import (
	"context"

	"bytra_go/internal/domain"
)

// Gateway places and cancels orders. It does not wait for fills: those
// arrive later as execution updates on the stream (or a FillSource).
type Gateway interface {
	// PlaceOrder sends a new order to the exchange.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, handle domain.OrderHandle) error
}

// FillSource is implemented by gateways that report executions themselves
// instead of through the exchange stream.
type FillSource interface {
	Fills() <-chan domain.Execution
}
