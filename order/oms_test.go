package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybit-oms/gateway"
	"bybit-oms/internal/exchange"
	"bybit-oms/internal/exchange/exchangetest"
)

func newTestOMS(t *testing.T) (*OMS, *exchangetest.Dialer) {
	t.Helper()
	d := exchangetest.NewDialer()
	o := NewOMS(OMSConfig{
		Symbol:     "BTCUSDT",
		Category:   "linear",
		PrivateURL: "wss://fake/v5/private",
		TradeURL:   "wss://fake/v5/trade",
		Throttle:   gateway.NewThrottle(100),
		Exchange: exchange.Options{
			Credentials:  gateway.StaticCredentials{APIKey: "k", APISecret: "s"},
			Dialer:       d,
			PingInterval: time.Hour,
		},
	})
	t.Cleanup(o.Kill)
	return o, d
}

func TestOMSEndToEnd(t *testing.T) {
	o, dl := newTestOMS(t)
	require.NoError(t, o.Connect(context.Background()))
	assert.Equal(t, 3, dl.Dials())
	for _, ch := range []string{OrderChannel, ExecutionChannel, TradeChannel} {
		assert.True(t, o.Connected(ch), ch)
	}

	orders := dl.ByTopic(gateway.OrderTopic)
	require.NotNil(t, orders)
	orders.Push(`{"topic":"order","data":[{"symbol":"BTCUSDT","category":"linear","side":"Buy","orderId":"o1","orderLinkId":"a","orderStatus":"New","leavesQty":"1","updatedTime":"1"}]}`)
	assert.Eventually(t, o.HasActive, time.Second, 5*time.Millisecond)

	execs := dl.ByTopic("execution.fast.linear")
	require.NotNil(t, execs)
	execs.Push(`{"topic":"execution.fast.linear","data":[{"symbol":"BTCUSDT","category":"linear","side":"Sell","execQty":"0.4","execPrice":"100","execTime":"1"}]}`)
	assert.Eventually(t, func() bool { return o.Position().String() == "-0.4" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Sell", o.LastSide())

	linkID, err := o.Create(context.Background(), CreateRequest{Side: SideBuy, OrderType: TypeMarket, Qty: d("0.4")})
	require.NoError(t, err)
	trade := dl.ByURL("wss://fake/v5/trade")
	creates := trade.WritesWithOp(gateway.OpCreate)
	require.Len(t, creates, 1)
	assert.Contains(t, creates[0], linkID)

	require.NoError(t, o.CancelAll(context.Background()))
	assert.Len(t, trade.WritesWithOp(gateway.OpCancel), 1)
}

func TestOMSTradeRejectionAndReconnect(t *testing.T) {
	o, dl := newTestOMS(t)
	fatal := make(chan error, 1)
	o.SetFatalErrorHandler(func(err error) { fatal <- err })
	require.NoError(t, o.Connect(context.Background()))

	dl.ByURL("wss://fake/v5/trade").Push(`{"retCode":10001,"retMsg":"params error","op":"order.create"}`)
	select {
	case err := <-fatal:
		assert.True(t, gateway.IsRejection(err))
	case <-time.After(time.Second):
		t.Fatal("no fatal error")
	}
	assert.Eventually(t, func() bool { return !o.Connected(TradeChannel) }, time.Second, 5*time.Millisecond)
	assert.True(t, o.Connected(OrderChannel))

	_, err := o.Create(context.Background(), CreateRequest{Side: SideBuy, OrderType: TypeMarket, Qty: d("1")})
	assert.ErrorIs(t, err, gateway.ErrNotConnected)

	require.NoError(t, o.Reconnect(context.Background()))
	assert.Equal(t, 6, dl.Dials())
	assert.True(t, o.Connected(TradeChannel))
	assert.NoError(t, o.Err(TradeChannel))
}
