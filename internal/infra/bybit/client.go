package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bytra_go/internal/domain"
	"bytra_go/internal/infra"
)

// maxKlineLimit is the largest page the kline endpoint serves.
const maxKlineLimit = 1000

// ErrAPI is returned when the exchange answers with a non-zero retCode.
var ErrAPI = errors.New("bybit api error")

// Client is the v5 REST client. It implements execution.Gateway,
// engine.BookSource and engine.HistorySource. Order calls go through the
// rate limiter and the circuit breaker; market data calls only through the
// limiter.
type Client struct {
	baseURL    string
	category   string
	userAgent  string
	httpClient *http.Client
	signer     *Signer
	limiter    *infra.RateLimiter
	breaker    *infra.CircuitBreaker
}

// NewClient creates a client for one exchange environment. Without
// credentials only the public endpoints work.
func NewClient(ex infra.ExchangeConfig, userAgent string) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(ex.BaseURL, "/"),
		category:   categoryInverse,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    infra.NewRateLimiter(ex.RateBurst, ex.RateLimit),
		breaker:    infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("bybit-orders")),
	}
	if ex.HasCredentials() {
		c.signer = NewSigner(ex.APIKey, ex.APISecret)
	}
	return c
}

// Signer returns the request signer, nil without credentials.
func (c *Client) Signer() *Signer { return c.signer }

// PlaceOrder implements execution.Gateway.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	body := createOrderRequest{
		Category:    c.category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   string(req.Type),
		Qty:         req.Qty.String(),
		TimeInForce: "GTC",
		OrderLinkID: req.LinkID,
		ReduceOnly:  req.ReduceOnly,
	}
	if req.Type == domain.OrderTypeMarket {
		body.TimeInForce = "IOC"
	} else {
		body.Price = req.LimitPrice().String()
	}
	if req.StopLoss.IsPositive() {
		body.StopLoss = req.StopLoss.String()
	}

	var res orderResult
	err := c.breaker.Execute(func() error {
		return c.do(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &res)
	})
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("place order %s: %w", req.LinkID, err)
	}

	slog.Info("Order placed",
		slog.String("order_id", res.OrderID),
		slog.String("link_id", req.LinkID),
		slog.String("side", string(req.Side)),
		slog.String("qty", body.Qty),
		slog.String("price", body.Price))
	return domain.OrderHandle{OrderID: res.OrderID, LinkID: req.LinkID, Symbol: req.Symbol}, nil
}

// CancelOrder implements execution.Gateway.
func (c *Client) CancelOrder(ctx context.Context, handle domain.OrderHandle) error {
	body := cancelOrderRequest{
		Category:    c.category,
		Symbol:      handle.Symbol,
		OrderID:     handle.OrderID,
		OrderLinkID: handle.LinkID,
	}
	err := c.breaker.Execute(func() error {
		return c.do(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, nil)
	})
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", handle.OrderID, err)
	}
	return nil
}

// FetchOrderBook implements engine.BookSource.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.BookSnapshot, error) {
	q := url.Values{}
	q.Set("category", c.category)
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(depth))

	var res orderBookResult
	if err := c.do(ctx, http.MethodGet, "/v5/market/orderbook", q, nil, false, &res); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("fetch orderbook: %w", err)
	}
	if res.Symbol == "" {
		res.Symbol = symbol
	}
	return toSnapshot(res.Symbol, res.Bids, res.Asks, res.U)
}

// FetchCandles implements engine.HistorySource. Candles come back oldest
// first; the newest one is the bar still forming and is marked open.
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	var out []domain.Candle
	var end int64
	for len(out) < limit {
		page := min(limit-len(out), maxKlineLimit)
		q := url.Values{}
		q.Set("category", c.category)
		q.Set("symbol", symbol)
		q.Set("interval", timeframe)
		q.Set("limit", strconv.Itoa(page))
		if end > 0 {
			q.Set("end", strconv.FormatInt(end, 10))
		}

		var res klineResult
		if err := c.do(ctx, http.MethodGet, "/v5/market/kline", q, nil, false, &res); err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		if len(res.List) == 0 {
			break
		}
		for _, row := range res.List {
			candle, err := parseKlineRow(row)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}
		end = out[len(out)-1].OpenTime.UnixMilli() - 1
		if len(res.List) < page {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	for i := range out {
		out[i].IsClosed = i < len(out)-1
	}
	return out, nil
}

func parseKlineRow(row []string) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}
	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("kline start: %w", err)
	}
	var v [5]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(start).UTC(),
		Open:     v[0],
		High:     v[1],
		Low:      v[2],
		Close:    v[3],
		Volume:   v[4],
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	if signed && c.signer == nil {
		return fmt.Errorf("%s requires api credentials", path)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	var payload string
	var reader io.Reader
	if query != nil {
		payload = query.Encode()
		target += "?" + payload
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = string(raw)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if signed {
		c.signer.SignRequest(req.Header, payload)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	var env restResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("%w %d: %s", ErrAPI, env.RetCode, env.RetMsg)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
