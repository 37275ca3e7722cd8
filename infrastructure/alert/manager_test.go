package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bybit-oms/gateway"
)

type recordSink struct {
	name string
	fail bool

	mu     sync.Mutex
	alerts []Alert
}

func (r *recordSink) Send(a Alert) error {
	if r.fail {
		return errors.New("sink down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordSink) Name() string { return r.name }

func (r *recordSink) all() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

func TestConnectionRejectedCarriesStreamDetails(t *testing.T) {
	sink := &recordSink{name: "rec"}
	m := NewManager(time.Minute, sink)

	require.NoError(t, m.ConnectionRejected(gateway.Rejection("trade", 10004, "Invalid sign")))

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, LevelCritical, got[0].Level)
	assert.Equal(t, "trade", got[0].Channel)
	assert.Equal(t, 10004, got[0].Code)
	assert.Equal(t, "Invalid sign", got[0].Fields["reason"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestThrottleSameAlert(t *testing.T) {
	sink := &recordSink{name: "rec"}
	m := NewManager(time.Hour, sink)

	rej := gateway.Rejection("order", 0, "")
	for i := 0; i < 3; i++ {
		require.NoError(t, m.ConnectionRejected(rej))
	}
	require.NoError(t, m.ConnectionRejected(gateway.Rejection("execution", 0, "")))
	assert.Len(t, sink.all(), 2, "different channel is a different key")

	m.ResetThrottle()
	require.NoError(t, m.ConnectionRejected(rej))
	assert.Len(t, sink.all(), 3)
}

func TestThrottlerInterval(t *testing.T) {
	th := NewThrottler(time.Second)
	now := time.Unix(0, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Second)
	assert.True(t, th.Allow("k"))
}

func TestSendFailsOnlyWhenAllSinksFail(t *testing.T) {
	ok := &recordSink{name: "ok"}
	bad := &recordSink{name: "bad", fail: true}

	m := NewManager(0, bad, ok)
	assert.NoError(t, m.ReconnectFailed(errors.New("dial")))
	assert.Len(t, ok.all(), 1)

	m = NewManager(0, bad)
	err := m.ReconnectFailed(errors.New("dial"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink bad")
}

func TestAddSink(t *testing.T) {
	m := NewManager(0)
	m.AddSink(&recordSink{name: "a"})
	m.AddSink(NewLogSink("log", nil))
	assert.Equal(t, []string{"a", "log"}, m.Sinks())
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewLogSink("log", zap.New(core))

	require.NoError(t, s.Send(Alert{Level: LevelCritical, Channel: "trade", Code: 10001, Message: "connection rejected"}))
	require.NoError(t, s.Send(Alert{Level: LevelWarning, Message: "w"}))
	require.NoError(t, s.Send(Alert{Level: LevelInfo, Message: "i"}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "trade", entries[0].ContextMap()["channel"])
	assert.Equal(t, int64(10001), entries[0].ContextMap()["code"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
}
