package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestFileOutputsAndErrorFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:      "debug",
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "oms.log"),
		ErrorFile:  filepath.Join(dir, "oms_errors.log"),
		Format:     "json",
	}
	l, err := New(cfg)
	require.NoError(t, err)

	l.LogOrder("create", "abc-1", map[string]interface{}{"qty": "0.1"})
	l.LogTrade("match", map[string]interface{}{"net": "9.89"})
	l.LogError(errors.New("boom"), map[string]interface{}{"channel": "trade"})
	_ = l.Close()

	all, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(all), `"order_link_id":"abc-1"`)
	assert.Contains(t, string(all), `"trade_event"`)

	errs, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(errs), "boom")
	assert.NotContains(t, string(errs), "order_event")
}

func TestNopAndNamed(t *testing.T) {
	l := NewNop().Named("oms")
	l.LogOrder("noop", "x", nil)
	assert.NotNil(t, l.Logger)
}
