package posttrade

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/monitor"
	"bybit-oms/internal/exchange"
	"bybit-oms/internal/exchange/exchangetest"
)

const execBatch = `{"topic":"execution.fast.linear","data":[
 {"symbol":"BTCUSDT","category":"linear","side":"Sell","execPrice":"110","execQty":"1","isMaker":false,"execTime":"1700000000200"},
 {"symbol":"BTCUSDT","category":"linear","side":"Buy","execPrice":"100","execQty":"1","isMaker":true,"execTime":"1700000000100"},
 {"symbol":"ETHUSDT","category":"linear","side":"Buy","execPrice":"1","execQty":"50","isMaker":true,"execTime":"1700000000000"}
]}`

func TestSessionHandleExecutions(t *testing.T) {
	mon := monitor.New(monitor.DefaultConfig())
	s := NewSession(SessionConfig{Symbol: "BTCUSDT", Category: "linear", Fees: testFees, Monitor: mon})

	env, err := gateway.ParseEnvelope([]byte(execBatch))
	require.NoError(t, err)
	require.NoError(t, s.HandleExecutions(env))

	assert.Equal(t, "9.89", s.PnL().String())
	assert.True(t, s.Snapshot().OpenBuy.IsZero())
	assert.InDelta(t, 9.89, gauge(t, mon, "oms_trading_realized_pnl"), 1e-9)
	assert.Equal(t, 1.0, gauge(t, mon, "oms_trading_win_rate"))
	n, err := testutil.GatherAndCount(mon.Registry(), "oms_trading_matched_trades_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other, _ := gateway.ParseEnvelope([]byte(`{"topic":"execution.fast.spot","data":[]}`))
	assert.True(t, gateway.IsIrrelevant(s.HandleExecutions(other)))
}

func gauge(t *testing.T, mon *monitor.Monitor, name string) float64 {
	t.Helper()
	mfs, err := mon.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestSessionStreamsFromConnection(t *testing.T) {
	dl := exchangetest.NewDialer()
	s := NewSession(SessionConfig{
		Symbol:     "BTCUSDT",
		Category:   "linear",
		PrivateURL: "wss://fake/v5/private",
		Fees:       testFees,
		Exchange:   exchange.Options{Dialer: dl, PingInterval: time.Hour},
	})
	require.NoError(t, s.Connect(context.Background()))
	defer s.Kill()
	assert.True(t, s.Connected())

	conn := dl.ByTopic("execution.fast.linear")
	require.NotNil(t, conn)
	conn.Push(execBatch)
	assert.Eventually(t, func() bool { return s.Snapshot().Matched == 1 }, time.Second, 5*time.Millisecond)

	conn.Fail(assert.AnError)
	assert.Eventually(t, func() bool { return !s.Connected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, gateway.KindTransport, gateway.KindOf(s.Err()))
	assert.Equal(t, "9.89", s.PnL().String(), "ledger survives a dropped connection")

	require.NoError(t, s.Reconnect(context.Background()))
	assert.True(t, s.Connected())
}

func TestSummaryTable(t *testing.T) {
	l := NewLedger(testFees)
	assert.Contains(t, Summary(l.Snapshot()), "n/a")

	l.Apply([]Fill{fill("Buy", "100", "1", true, 1), fill("Sell", "110", "1", false, 2)})
	out := Summary(l.Snapshot())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "Session Metrics"))
	assert.Regexp(t, `^Session win rate\s+1\.0000$`, lines[2])
	assert.Regexp(t, `^Session profit \(loss\)\s+9\.8900$`, lines[3])
	assert.Regexp(t, `^Session maximum drawdown\s+0\.0000$`, lines[5])
}
