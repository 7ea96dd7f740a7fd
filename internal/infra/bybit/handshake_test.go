package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptConn struct {
	replies [][]byte
	sent    []string
}

func (c *scriptConn) ReadNext(ctx context.Context) ([]byte, error) {
	if len(c.replies) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func (c *scriptConn) Send(ctx context.Context, frame []byte) error {
	c.sent = append(c.sent, string(frame))
	return nil
}

func TestHandshake_PublicSubscribe(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		[]byte(`{"success":true,"ret_msg":"","op":"subscribe"}`),
	}}
	err := handshake(context.Background(), conn, NewCodec(50, false), nil, []string{"kline.1.BTCUSD"}, time.Second)
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	assert.JSONEq(t, `{"op":"subscribe","args":["kline.1.BTCUSD"]}`, conn.sent[0])
}

func TestHandshake_AuthThenSubscribe(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		[]byte(`{"success":true,"op":"auth"}`),
		[]byte(`{"topic":"orderbook.50.BTCUSD","type":"snapshot","data":{"s":"BTCUSD","b":[],"a":[],"u":1}}`),
		[]byte(`{"success":true,"op":"subscribe"}`),
	}}
	err := handshake(context.Background(), conn, NewCodec(50, true), NewSigner("k", "s"), []string{"execution"}, time.Second)
	require.NoError(t, err)
	require.Len(t, conn.sent, 2)
	assert.Contains(t, conn.sent[0], `"op":"auth"`)
	assert.Contains(t, conn.sent[1], `"op":"subscribe"`)
}

func TestHandshake_Rejected(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		[]byte(`{"success":false,"ret_msg":"invalid api key","op":"auth"}`),
	}}
	err := handshake(context.Background(), conn, NewCodec(50, true), NewSigner("k", "s"), nil, time.Second)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid api key")
	assert.Len(t, conn.sent, 1)
}

func TestHandshake_Timeout(t *testing.T) {
	conn := &scriptConn{}
	err := handshake(context.Background(), conn, NewCodec(50, false), nil, []string{"kline.1.BTCUSD"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
