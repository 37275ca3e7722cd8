package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制出站请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait()
}

// DefaultAPIRate 每秒最多出站调用次数。
const DefaultAPIRate = 10

// Throttle 是滑动窗口限流器：任意 1 秒窗口内最多记录 rate 次调用。
// 所有出站操作（connect/create/amend/cancel）共享同一个实例。
type Throttle struct {
	rate   int
	window time.Duration
	poll   time.Duration

	mu    sync.Mutex
	calls []time.Time

	now    func() time.Time
	sleep  func(time.Duration)
	onWait func(time.Duration)
}

func NewThrottle(rate int) *Throttle {
	if rate <= 0 {
		rate = 1
	}
	return &Throttle{
		rate:   rate,
		window: time.Second,
		poll:   time.Millisecond,
		calls:  make([]time.Time, 0, rate),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// SetClock 替换时钟，便于测试。
func (t *Throttle) SetClock(now func() time.Time, sleep func(time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now != nil {
		t.now = now
	}
	if sleep != nil {
		t.sleep = sleep
	}
}

// SetWaitObserver 每次放行时回调本次等待时长（用于指标）。
func (t *Throttle) SetWaitObserver(fn func(time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWait = fn
}

// Rate 返回每秒允许的调用数。
func (t *Throttle) Rate() int { return t.rate }

// Wait 轮询直到窗口内调用数小于 rate，然后原子地记录本次调用时间戳。
// 从不返回错误，只会延迟。
func (t *Throttle) Wait() {
	t.mu.Lock()
	start := t.now()
	t.mu.Unlock()
	for {
		t.mu.Lock()
		now := t.now()
		t.evictLocked(now)
		if len(t.calls) < t.rate {
			t.calls = append(t.calls, now)
			observe := t.onWait
			t.mu.Unlock()
			if observe != nil {
				observe(now.Sub(start))
			}
			return
		}
		sleep := t.sleep
		t.mu.Unlock()
		sleep(t.poll)
	}
}

// InWindow 返回当前窗口内已记录的调用数。
func (t *Throttle) InWindow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	return len(t.calls)
}

// evictLocked 丢弃超出窗口的时间戳（调用方持锁）。
func (t *Throttle) evictLocked(now time.Time) {
	cut := 0
	for cut < len(t.calls) && now.Sub(t.calls[cut]) > t.window {
		cut++
	}
	if cut > 0 {
		t.calls = append(t.calls[:0], t.calls[cut:]...)
	}
}
