package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	// AuthPayloadPrefix 是签名原文前缀，原文为 "GET/realtime" + expires(ms)。
	AuthPayloadPrefix = "GET/realtime"
	// DefaultAuthExpiry 签名有效期。
	DefaultAuthExpiry = 10 * time.Second
	// DefaultPingInterval 心跳间隔。
	DefaultPingInterval = 20 * time.Second

	OpAuth      = "auth"
	OpSubscribe = "subscribe"
	OpPing      = "ping"
	OpPong      = "pong"
)

// CredentialProvider 提供 API key/secret（由配置层实现）。
type CredentialProvider interface {
	Credentials() (apiKey, apiSecret string)
}

// StaticCredentials 是固定凭证。
type StaticCredentials struct {
	APIKey    string
	APISecret string
}

func (c StaticCredentials) Credentials() (string, string) { return c.APIKey, c.APISecret }

// ControlMessage 对应 {"op":...,"args":[...]} 控制帧。
type ControlMessage struct {
	Op   string `json:"op"`
	Args []any  `json:"args,omitempty"`
}

// Sign 计算 hex(HMAC-SHA256(secret, "GET/realtime"+expires))。
func Sign(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(AuthPayloadPrefix + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthMessage 构造鉴权消息，expires = now + expiry（毫秒）。
func AuthMessage(creds CredentialProvider, now time.Time, expiry time.Duration) ControlMessage {
	if expiry <= 0 {
		expiry = DefaultAuthExpiry
	}
	key, secret := creds.Credentials()
	expires := now.Add(expiry).UnixMilli()
	return ControlMessage{
		Op:   OpAuth,
		Args: []any{key, expires, Sign(secret, expires)},
	}
}

func SubscribeMessage(topics ...string) ControlMessage {
	args := make([]any, 0, len(topics))
	for _, t := range topics {
		args = append(args, t)
	}
	return ControlMessage{Op: OpSubscribe, Args: args}
}

func PingMessage() ControlMessage { return ControlMessage{Op: OpPing} }
