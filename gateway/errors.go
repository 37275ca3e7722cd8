package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrIrrelevant 表示消息与本引擎无关（其他 topic/symbol，或字段缺失），应静默忽略。
	ErrIrrelevant = errors.New("irrelevant message")
	// ErrNotConnected 表示目标连接不存在或已关闭。
	ErrNotConnected = errors.New("channel not connected")
	// ErrInvalidRequest 表示订单请求未通过校验，未进入限流器。
	ErrInvalidRequest = errors.New("invalid order request")
)

// ErrorKind 区分入站流上的三类错误。
type ErrorKind int

const (
	KindIrrelevant ErrorKind = iota + 1
	KindRejection
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindIrrelevant:
		return "irrelevant"
	case KindRejection:
		return "rejection"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// StreamError 是连接上唯一的错误类型。
type StreamError struct {
	Kind    ErrorKind
	Channel string
	Code    int
	Msg     string
	Err     error
}

func (e *StreamError) Error() string {
	s := fmt.Sprintf("%s %s", e.Channel, e.Kind)
	if e.Code != 0 {
		s += fmt.Sprintf(" code=%d", e.Code)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *StreamError) Unwrap() error { return e.Err }

// Irrelevant 包装一条被忽略的消息。
func Irrelevant(channel string, cause error) error {
	if cause == nil {
		cause = ErrIrrelevant
	} else {
		cause = fmt.Errorf("%w: %v", ErrIrrelevant, cause)
	}
	return &StreamError{Kind: KindIrrelevant, Channel: channel, Err: cause}
}

// Rejection 构造协议拒绝错误（success=false 或 retCode 非零）。
func Rejection(channel string, code int, msg string) error {
	return &StreamError{Kind: KindRejection, Channel: channel, Code: code, Msg: msg}
}

// Transport 包装底层读写错误。
func Transport(channel string, err error) error {
	return &StreamError{Kind: KindTransport, Channel: channel, Err: err}
}

// KindOf 返回错误的分类；非 StreamError 返回 0。
func KindOf(err error) ErrorKind {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrIrrelevant) {
		return KindIrrelevant
	}
	return 0
}

func IsRejection(err error) bool { return KindOf(err) == KindRejection }

func IsIrrelevant(err error) bool { return KindOf(err) == KindIrrelevant }
