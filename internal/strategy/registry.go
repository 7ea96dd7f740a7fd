package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"bytra_go/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrInvalidStrategyName is returned for a name nothing is registered under.
// It is only ever a startup failure.
var ErrInvalidStrategyName = errors.New("invalid strategy name")

// Settings are the per-strategy parameters read from configuration.
// Zero fields fall back to the variant's defaults.
type Settings struct {
	Symbol      string  `yaml:"symbol"`
	TimeFrame   string  `yaml:"timeframe"`
	History     int     `yaml:"history"`
	Qty         float64 `yaml:"qty"`
	OrderType   string  `yaml:"order_type"`
	Slippage    float64 `yaml:"slippage"`
	StopLossPct float64 `yaml:"stop_loss_pct"`

	// RSI
	Length     int     `yaml:"length"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
	Exit       float64 `yaml:"exit"`

	// EMA crossover
	Fast int `yaml:"fast"`
	Slow int `yaml:"slow"`
}

// Factory builds a strategy from settings.
type Factory func(s Settings) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in variants.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("rsi", func(s Settings) (Strategy, error) { return NewRSI(RSIParamsFrom(s)) })
	r.Register("ema", func(s Settings) (Strategy, error) { return NewEMACross(EMAParamsFrom(s)) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// New builds the strategy registered under name.
func (r *Registry) New(name string, s Settings) (Strategy, error) {
	f, ok := r.factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidStrategyName, name, strings.Join(r.Names(), ", "))
	}
	return f(s)
}

// Names lists registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// common order settings shared by all variants
type orderParams struct {
	Symbol      string
	TimeFrame   string
	History     int
	Qty         float64
	OrderType   domain.OrderType
	Slippage    float64
	StopLossPct float64
}

func orderParamsFrom(s Settings) orderParams {
	p := orderParams{
		Symbol:      "BTCUSD",
		TimeFrame:   "1",
		History:     1000,
		Qty:         100,
		OrderType:   domain.OrderTypeLimit,
		Slippage:    5.0,
		StopLossPct: 0.03,
	}
	if s.Symbol != "" {
		p.Symbol = s.Symbol
	}
	if s.TimeFrame != "" {
		p.TimeFrame = s.TimeFrame
	}
	if s.History > 0 {
		p.History = s.History
	}
	if s.Qty > 0 {
		p.Qty = s.Qty
	}
	if strings.EqualFold(s.OrderType, string(domain.OrderTypeMarket)) {
		p.OrderType = domain.OrderTypeMarket
	}
	if s.Slippage > 0 {
		p.Slippage = s.Slippage
	}
	if s.StopLossPct > 0 {
		p.StopLossPct = s.StopLossPct
	}
	return p
}

func (p orderParams) profile(name string) Profile {
	return Profile{
		Name:        name,
		Symbol:      p.Symbol,
		TimeFrames:  []domain.TimeFrame{{Unit: p.TimeFrame, RequiredHistoryLength: p.History}},
		Qty:         decimal.NewFromFloat(p.Qty),
		OrderType:   p.OrderType,
		Slippage:    decimal.NewFromFloat(p.Slippage),
		StopLossPct: p.StopLossPct,
	}
}
