package bybit

import "encoding/json"

// Stream and REST constants.
const (
	opPing      = "ping"
	opPong      = "pong"
	opSubscribe = "subscribe"
	opAuth      = "auth"

	topicKline     = "kline"
	topicOrderBook = "orderbook"
	topicExecution = "execution"
	topicOrder     = "order"

	categoryInverse = "inverse"
	defaultDepth    = 50
	recvWindow      = "5000"
	authTTLMillis   = 10_000
)

// request is an outbound op frame.
type request struct {
	Op    string `json:"op"`
	ReqID string `json:"req_id,omitempty"`
	Args  []any  `json:"args,omitempty"`
}

// envelope is the common shape of every inbound frame. Data is decoded
// once the topic is known.
type envelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
}

type klineData struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	Close   string `json:"close"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

type orderBookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	U      int64       `json:"u"`
}

type executionData struct {
	Symbol        string `json:"symbol"`
	OrderID       string `json:"orderId"`
	OrderLinkID   string `json:"orderLinkId"`
	Side          string `json:"side"`
	ExecType      string `json:"execType"`
	ExecPrice     string `json:"execPrice"`
	ExecQty       string `json:"execQty"`
	LeavesQty     string `json:"leavesQty"`
	StopOrderType string `json:"stopOrderType"`
	ExecTime      string `json:"execTime"`
}

type orderData struct {
	Symbol        string `json:"symbol"`
	OrderID       string `json:"orderId"`
	OrderLinkID   string `json:"orderLinkId"`
	Side          string `json:"side"`
	OrderStatus   string `json:"orderStatus"`
	LeavesQty     string `json:"leavesQty"`
	StopOrderType string `json:"stopOrderType"`
	UpdatedTime   string `json:"updatedTime"`
}

// restResponse is the v5 REST envelope.
type restResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce"`
	OrderLinkID string `json:"orderLinkId"`
	StopLoss    string `json:"stopLoss,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
}

type cancelOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	OrderID     string `json:"orderId,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderBookResult struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	U      int64       `json:"u"`
}

// klineResult rows are [start, open, high, low, close, volume, turnover],
// newest first.
type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}
