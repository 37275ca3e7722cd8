package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bybit-oms/gateway"
	"bybit-oms/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string            `yaml:"env"`
	Symbol      string            `yaml:"symbol"`
	Category    string            `yaml:"category"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Fees        FeesConfig        `yaml:"fees"`
	Constraints ConstraintsConfig `yaml:"constraints"`
	Log         logger.Config     `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// GatewayConfig 描述交易所连接参数。零值字段在 Load 时补默认值。
type GatewayConfig struct {
	APIKey          string `yaml:"apiKey"`
	APISecret       string `yaml:"apiSecret"`
	PrivateURL      string `yaml:"privateURL"`
	TradeURL        string `yaml:"tradeURL"`
	APIRate         int    `yaml:"apiRate"`         // 每秒出站调用上限
	RecvWindowMs    int    `yaml:"recvWindowMs"`    // 请求有效窗口
	PingIntervalSec int    `yaml:"pingIntervalSec"` // 心跳间隔
	AuthTimeoutSec  int    `yaml:"authTimeoutSec"`  // 等待鉴权回报的上限
	ExpirySec       int    `yaml:"expirySec"`       // 鉴权签名有效期
}

// Credentials 实现 gateway.CredentialProvider。
func (g GatewayConfig) Credentials() (string, string) { return g.APIKey, g.APISecret }

func (g GatewayConfig) RecvWindow() string { return strconv.Itoa(g.RecvWindowMs) }
func (g GatewayConfig) PingInterval() time.Duration { return time.Duration(g.PingIntervalSec) * time.Second }
func (g GatewayConfig) AuthTimeout() time.Duration { return time.Duration(g.AuthTimeoutSec) * time.Second }
func (g GatewayConfig) AuthExpiry() time.Duration { return time.Duration(g.ExpirySec) * time.Second }

// FeesConfig 是 maker/taker 费率，小数表示（0.0002 即 0.02%）。
type FeesConfig struct {
	Maker float64 `yaml:"maker"`
	Taker float64 `yaml:"taker"`
}

func (f FeesConfig) MakerRate() decimal.Decimal { return decimal.NewFromFloat(f.Maker) }
func (f FeesConfig) TakerRate() decimal.Decimal { return decimal.NewFromFloat(f.Taker) }

// ConstraintsConfig 保存交易对的精度/名义限制，零值表示不检查。
type ConstraintsConfig struct {
	TickSize    float64 `yaml:"tickSize"`
	StepSize    float64 `yaml:"stepSize"`
	MinQty      float64 `yaml:"minQty"`
	MaxQty      float64 `yaml:"maxQty"`
	MinNotional float64 `yaml:"minNotional"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动 /metrics
}

var validCategories = map[string]bool{"spot": true, "linear": true, "inverse": true, "option": true}

// Load reads YAML config from path, fills defaults and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides credentials from OMS_API_KEY / OMS_API_SECRET.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("OMS_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("OMS_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

func read(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	g := &c.Gateway
	if g.PrivateURL == "" {
		g.PrivateURL = gateway.DefaultPrivateURL
	}
	if g.TradeURL == "" {
		g.TradeURL = gateway.DefaultTradeURL
	}
	if g.APIRate == 0 {
		g.APIRate = gateway.DefaultAPIRate
	}
	if g.RecvWindowMs == 0 {
		g.RecvWindowMs = 8000
	}
	if g.PingIntervalSec == 0 {
		g.PingIntervalSec = int(gateway.DefaultPingInterval / time.Second)
	}
	if g.AuthTimeoutSec == 0 {
		g.AuthTimeoutSec = 10
	}
	if g.ExpirySec == 0 {
		g.ExpirySec = int(gateway.DefaultAuthExpiry / time.Second)
	}
	if c.Log.Level == "" {
		c.Log = logger.DefaultConfig()
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !validCategories[cfg.Category] {
		return fmt.Errorf("category %q must be one of spot/linear/inverse/option", cfg.Category)
	}
	g := cfg.Gateway
	if g.APIKey == "" || g.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if g.PrivateURL == "" || g.TradeURL == "" {
		return errors.New("gateway.privateURL/tradeURL is required")
	}
	if g.APIRate <= 0 {
		return errors.New("gateway.apiRate must be > 0")
	}
	if g.RecvWindowMs < 0 || g.PingIntervalSec < 0 || g.AuthTimeoutSec < 0 || g.ExpirySec < 0 {
		return errors.New("gateway timings must be >= 0")
	}
	if cfg.Fees.Maker < 0 || cfg.Fees.Taker < 0 {
		return errors.New("fees.maker/taker must be >= 0")
	}
	c := cfg.Constraints
	if c.TickSize < 0 || c.StepSize < 0 || c.MinQty < 0 || c.MaxQty < 0 || c.MinNotional < 0 {
		return errors.New("constraints must be >= 0")
	}
	return nil
}
