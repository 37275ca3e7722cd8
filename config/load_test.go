package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const minimalConfig = `
env: dev
symbol: BTCUSDT
category: linear
gateway:
  apiKey: foo
  apiSecret: bar
fees:
  maker: 0.0002
  taker: 0.00055
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Gateway.APIKey != "foo" || cfg.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if got := cfg.Fees.TakerRate().String(); got != "0.00055" {
		t.Fatalf("taker rate = %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g := cfg.Gateway
	if g.PrivateURL != "wss://stream.bybit.com/v5/private" || g.TradeURL != "wss://stream.bybit.com/v5/trade" {
		t.Fatalf("default urls not applied: %+v", g)
	}
	if g.APIRate != 10 || g.RecvWindow() != "8000" {
		t.Fatalf("default rate/recvWindow not applied: %+v", g)
	}
	if g.PingInterval() != 20*time.Second || g.AuthExpiry() != 10*time.Second || g.AuthTimeout() != 10*time.Second {
		t.Fatalf("default timings not applied: %+v", g)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("default log level not applied: %+v", cfg.Log)
	}
	key, secret := g.Credentials()
	if key != "foo" || secret != "bar" {
		t.Fatalf("credentials = %s/%s", key, secret)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
symbol: ETHUSDT
category: linear
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected missing credentials error")
	}
	t.Setenv("OMS_API_KEY", "env-key")
	t.Setenv("OMS_API_SECRET", "env-secret")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.APIKey != "env-key" || cfg.Gateway.APISecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Gateway)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
	good, err := Load(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []func(*AppConfig){
		func(c *AppConfig) { c.Category = "futures" },
		func(c *AppConfig) { c.Symbol = "" },
		func(c *AppConfig) { c.Gateway.APIRate = -1 },
		func(c *AppConfig) { c.Fees.Taker = -0.1 },
		func(c *AppConfig) { c.Constraints.StepSize = -1 },
		func(c *AppConfig) { c.Gateway.TradeURL = "" },
	}
	for i, mutate := range bad {
		c := good
		mutate(&c)
		if err := Validate(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
