package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Mode represents the trading execution mode
type Mode string

const (
	ModePaper   Mode = "paper"
	ModeTestnet Mode = "testnet"
	ModeReal    Mode = "real"
)

// ErrRealMoneyNotConfirmed guards real trading behind CONFIRM_REAL_MONEY=true.
var ErrRealMoneyNotConfirmed = errors.New("SAFETY_GUARD: real trading requires CONFIRM_REAL_MONEY=true")

// ExchangeGateway builds the live exchange gateway for testnet and real modes.
type ExchangeGateway func() (Gateway, error)

// ExecutionFactory creates the gateway for a trading mode.
type ExecutionFactory struct {
	mode     Mode
	exchange ExchangeGateway
	buffer   int
	getenv   func(string) string
}

// NewExecutionFactory creates a new factory
func NewExecutionFactory(mode string, exchange ExchangeGateway) *ExecutionFactory {
	return &ExecutionFactory{
		mode:     Mode(strings.ToLower(mode)),
		exchange: exchange,
		buffer:   16,
		getenv:   os.Getenv,
	}
}

// CreateGateway returns the Gateway for the configured mode.
func (f *ExecutionFactory) CreateGateway() (Gateway, error) {
	slog.Info("Initializing Execution System", slog.String("mode", string(f.mode)))

	switch f.mode {
	case ModePaper:
		return NewPaperGateway(f.buffer), nil

	case ModeTestnet:
		slog.Info("Connecting to Bybit TESTNET")
		return f.live()

	case ModeReal:
		if f.getenv("CONFIRM_REAL_MONEY") != "true" {
			slog.Error(ErrRealMoneyNotConfirmed.Error())
			return nil, ErrRealMoneyNotConfirmed
		}
		slog.Warn("Connecting to Bybit REAL (Mainnet)")
		return f.live()

	default:
		return nil, fmt.Errorf("unknown execution mode: %s", f.mode)
	}
}

func (f *ExecutionFactory) live() (Gateway, error) {
	if f.exchange == nil {
		return nil, fmt.Errorf("%s mode needs an exchange gateway", f.mode)
	}
	gw, err := f.exchange()
	if err != nil {
		return nil, fmt.Errorf("create %s gateway: %w", f.mode, err)
	}
	return gw, nil
}
