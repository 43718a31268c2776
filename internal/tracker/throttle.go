package tracker

import (
	"context"
	"sync"
	"time"
)

// throttle хранит общее для всех воркеров состояние rate limit: момент, раньше которого
// нельзя отправлять запросы. Retry-After или 429/503 без него сдвигают его вперёд.
type throttle struct {
	mu        sync.Mutex
	notBefore time.Time
	now       func() time.Time
}

func newThrottle(now func() time.Time) *throttle {
	return &throttle{now: now}
}

// hold запрещает запросы на d от текущего момента. Более ранний запрет не сокращается.
func (t *throttle) hold(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	until := t.now().Add(d)
	if until.After(t.notBefore) {
		t.notBefore = until
	}
}

// delay возвращает, сколько ещё нужно ждать.
func (t *throttle) delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notBefore.Sub(t.now())
}

// wait блокируется до снятия запрета или отмены контекста.
func (t *throttle) wait(ctx context.Context) error {
	d := t.delay()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
