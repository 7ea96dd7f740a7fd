package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"bytra_go/internal/domain"
	"bytra_go/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock HTTP responses
type MockRoundTripper struct {
	Func func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Func(req)
}

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(t *testing.T, withKeys bool, fn func(req *http.Request) (*http.Response, error)) *Client {
	t.Helper()
	ex := infra.ExchangeConfig{BaseURL: "https://api.test", RateLimit: 0, RateBurst: 1}
	if withKeys {
		ex.APIKey = "key"
		ex.APISecret = "secret"
	}
	c := NewClient(ex, "bytra-test")
	c.httpClient.Transport = &MockRoundTripper{Func: fn}
	return c
}

func TestClient_PlaceOrder(t *testing.T) {
	var sent createOrderRequest
	c := newTestClient(t, true, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v5/order/create", req.URL.Path)
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "key", req.Header.Get("X-BAPI-API-KEY"))
		assert.NotEmpty(t, req.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, "bytra-test", req.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
		return jsonResponse(`{"retCode":0,"retMsg":"OK","result":{"orderId":"ex-1","orderLinkId":"l1"}}`), nil
	})

	h, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		LinkID:   "l1",
		Symbol:   "BTCUSD",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeLimit,
		Purpose:  domain.PurposeEntry,
		Qty:      decimal.NewFromInt(100),
		RefPrice: decimal.NewFromInt(102),
		Slippage: decimal.NewFromInt(5),
		StopLoss: decimal.RequireFromString("103.79"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderHandle{OrderID: "ex-1", LinkID: "l1", Symbol: "BTCUSD"}, h)

	assert.Equal(t, "inverse", sent.Category)
	assert.Equal(t, "Buy", sent.Side)
	assert.Equal(t, "Limit", sent.OrderType)
	assert.Equal(t, "100", sent.Qty)
	assert.Equal(t, "107", sent.Price)
	assert.Equal(t, "GTC", sent.TimeInForce)
	assert.Equal(t, "103.79", sent.StopLoss)
	assert.False(t, sent.ReduceOnly)
}

func TestClient_PlaceMarketExit(t *testing.T) {
	var sent map[string]any
	c := newTestClient(t, true, func(req *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
		return jsonResponse(`{"retCode":0,"result":{"orderId":"ex-2"}}`), nil
	})

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		LinkID:     "x1",
		Symbol:     "BTCUSD",
		Side:       domain.SideSell,
		Type:       domain.OrderTypeMarket,
		Qty:        decimal.NewFromInt(100),
		RefPrice:   decimal.NewFromInt(110),
		ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "IOC", sent["timeInForce"])
	assert.Equal(t, true, sent["reduceOnly"])
	assert.NotContains(t, sent, "price")
	assert.NotContains(t, sent, "stopLoss")
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, true, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(`{"retCode":10001,"retMsg":"params error"}`), nil
	})

	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{LinkID: "l1", Qty: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.ErrorContains(t, err, "params error")
}

func TestClient_BreakerOpensOnRepeatedFailures(t *testing.T) {
	calls := 0
	c := newTestClient(t, true, func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(bytes.NewBufferString("bad gateway")), Header: make(http.Header)}, nil
	})

	req := domain.OrderRequest{LinkID: "l1", Qty: decimal.NewFromInt(1)}
	for range 5 {
		_, err := c.PlaceOrder(context.Background(), req)
		require.Error(t, err)
	}
	_, err := c.PlaceOrder(context.Background(), req)
	assert.ErrorIs(t, err, infra.ErrCircuitOpen)
	assert.Equal(t, 5, calls)
}

func TestClient_OrdersNeedCredentials(t *testing.T) {
	c := newTestClient(t, false, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	assert.Nil(t, c.Signer())

	err := c.CancelOrder(context.Background(), domain.OrderHandle{OrderID: "o1"})
	assert.ErrorContains(t, err, "requires api credentials")
}

func TestClient_CancelOrder(t *testing.T) {
	var sent cancelOrderRequest
	c := newTestClient(t, true, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v5/order/cancel", req.URL.Path)
		require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
		return jsonResponse(`{"retCode":0,"result":{"orderId":"o1"}}`), nil
	})

	require.NoError(t, c.CancelOrder(context.Background(), domain.OrderHandle{OrderID: "o1", LinkID: "l1", Symbol: "BTCUSD"}))
	assert.Equal(t, cancelOrderRequest{Category: "inverse", Symbol: "BTCUSD", OrderID: "o1", OrderLinkID: "l1"}, sent)
}

func TestClient_FetchOrderBook(t *testing.T) {
	c := newTestClient(t, false, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v5/market/orderbook", req.URL.Path)
		assert.Equal(t, "BTCUSD", req.URL.Query().Get("symbol"))
		assert.Equal(t, "50", req.URL.Query().Get("limit"))
		assert.Empty(t, req.Header.Get("X-BAPI-SIGN"))
		return jsonResponse(`{"retCode":0,"result":{"s":"BTCUSD","b":[["100","5"]],"a":[["101","6"],["102","1"]],"u":42}}`), nil
	})

	snap, err := c.FetchOrderBook(context.Background(), "BTCUSD", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.UpdateID)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 2)
	assert.True(t, snap.Asks[1].Price.Equal(decimal.NewFromInt(102)))
}

func klineRows(startMinute, n int) string {
	// newest first, as the exchange returns them
	rows := make([][]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := int64(startMinute+i) * 60_000
		px := strconv.Itoa(100 + startMinute + i)
		rows = append(rows, []string{strconv.FormatInt(start, 10), px, px, px, px, "1", "0"})
	}
	raw, _ := json.Marshal(map[string]any{
		"retCode": 0,
		"result":  map[string]any{"symbol": "BTCUSD", "list": rows},
	})
	return string(raw)
}

func TestClient_FetchCandles(t *testing.T) {
	c := newTestClient(t, false, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v5/market/kline", req.URL.Path)
		assert.Equal(t, "1", req.URL.Query().Get("interval"))
		return jsonResponse(klineRows(10, 3)), nil
	})

	candles, err := c.FetchCandles(context.Background(), "BTCUSD", "1", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, 110.0, candles[0].Close)
	assert.Equal(t, 112.0, candles[2].Close)
	assert.True(t, candles[0].IsClosed)
	assert.True(t, candles[1].IsClosed)
	assert.False(t, candles[2].IsClosed)
}

func TestClient_FetchCandlesPages(t *testing.T) {
	var ends []string
	c := newTestClient(t, false, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		ends = append(ends, q.Get("end"))
		if q.Get("end") == "" {
			assert.Equal(t, "1000", q.Get("limit"))
			return jsonResponse(klineRows(2000, 1000)), nil
		}
		assert.Equal(t, "5", q.Get("limit"))
		return jsonResponse(klineRows(1995, 5)), nil
	})

	candles, err := c.FetchCandles(context.Background(), "BTCUSD", "1", 1005)
	require.NoError(t, err)
	require.Len(t, candles, 1005)
	assert.Equal(t, []string{"", strconv.FormatInt(2000*60_000-1, 10)}, ends)
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i-1].OpenTime.Before(candles[i].OpenTime))
	}
}
