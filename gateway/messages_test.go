package gateway

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T, raw string) Envelope {
	t.Helper()
	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)
	return env
}

func TestDecodeOrdersFiltersAndSorts(t *testing.T) {
	env := mustEnvelope(t, `{"topic":"order","data":[
		{"symbol":"BTCUSDT","category":"linear","orderLinkId":"b","orderStatus":"Filled","leavesQty":"0","updatedTime":"1700000000300"},
		{"symbol":"ETHUSDT","category":"linear","orderLinkId":"x","orderStatus":"New","leavesQty":"1","updatedTime":"1700000000100"},
		{"symbol":"BTCUSDT","category":"spot","orderLinkId":"y","orderStatus":"New","leavesQty":"1","updatedTime":"1700000000100"},
		{"symbol":"BTCUSDT","category":"linear","orderLinkId":"a","orderStatus":"New","leavesQty":"0.5","price":"","updatedTime":"1700000000200"}
	]}`)

	orders, err := DecodeOrders(env, "order", "BTCUSDT", "linear")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "a", orders[0].OrderLinkID)
	assert.Equal(t, "b", orders[1].OrderLinkID)
	assert.Equal(t, "0.5", orders[0].LeavesQty.String())
	assert.True(t, orders[0].Price.IsZero())
	assert.Equal(t, time.UnixMilli(1_700_000_000_200), orders[0].UpdatedTime.Time())
}

func TestDecodeOrdersIrrelevant(t *testing.T) {
	cases := map[string]string{
		"other topic":  `{"topic":"position","data":[]}`,
		"other symbol": `{"topic":"order","data":[{"symbol":"ETHUSDT","category":"linear"}]}`,
		"malformed":    `{"topic":"order","data":{"symbol":1}}`,
		"ack":          `{"success":true,"op":"subscribe"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrders(mustEnvelope(t, raw), "order", "BTCUSDT", "linear")
			assert.True(t, IsIrrelevant(err), "got %v", err)
			assert.ErrorIs(t, err, ErrIrrelevant)
		})
	}
}

func TestDecodeExecutions(t *testing.T) {
	env := mustEnvelope(t, `{"topic":"execution.fast.linear","data":[
		{"symbol":"BTCUSDT","category":"linear","side":"Sell","execPrice":"110","execQty":"1","isMaker":false,"execTime":"1700000000002"},
		{"symbol":"BTCUSDT","category":"linear","side":"Buy","execPrice":"100","execQty":"1","isMaker":true,"execTime":"1700000000001"}
	]}`)
	execs, err := DecodeExecutions(env, "exec", "BTCUSDT", "linear")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.True(t, execs[0].IsBuy())
	assert.True(t, execs[0].IsMaker)
	assert.True(t, execs[1].IsSell())
	assert.Equal(t, "110", execs[1].Price.String())

	_, err = DecodeExecutions(env, "exec", "BTCUSDT", "inverse")
	assert.True(t, IsIrrelevant(err))
}

func TestEnvelopeRejection(t *testing.T) {
	assert.NoError(t, mustEnvelope(t, `{"success":true,"op":"auth"}`).Rejection("order"))
	assert.NoError(t, mustEnvelope(t, `{"retCode":0,"op":"auth"}`).Rejection("trade"))
	assert.NoError(t, mustEnvelope(t, `{"topic":"order","data":[]}`).Rejection("order"))

	err := mustEnvelope(t, `{"success":false,"ret_msg":"Params Error","op":"auth"}`).Rejection("order")
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Contains(t, err.Error(), "Params Error")

	err = mustEnvelope(t, `{"retCode":10004,"retMsg":"error sign","op":"order.create"}`).Rejection("trade")
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindRejection, se.Kind)
	assert.Equal(t, 10004, se.Code)
	assert.Equal(t, "trade", se.Channel)
}

func TestOrderRequestWire(t *testing.T) {
	req := NewOrderRequest(OpCancel, time.UnixMilli(1_700_000_000_123), "", CancelArgs{
		Category: "linear", Symbol: "BTCUSDT", OrderID: "abc",
	})
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"header":{"X-BAPI-TIMESTAMP":"1700000000123","X-BAPI-RECV-WINDOW":"8000"},
		"op":"order.cancel",
		"args":[{"category":"linear","symbol":"BTCUSDT","orderId":"abc"}]
	}`, string(raw))
}

func TestSortExecutionsStable(t *testing.T) {
	execs := []Execution{
		{ExecID: "c", ExecTime: 3},
		{ExecID: "a1", ExecTime: 1},
		{ExecID: "a2", ExecTime: 1},
	}
	SortExecutions(execs)
	assert.Equal(t, []string{"a1", "a2", "c"}, []string{execs[0].ExecID, execs[1].ExecID, execs[2].ExecID})
}
