package relay

import (
	"context"
	"errors"
)

var ErrSemaphoreTimeout = errors.New("SEMAPHORE_TIMEOUT")

// sendLimiter 带缓冲 channel 实现的信号量，限制同时在发 Kafka 的请求数。
// worker 路径用 Acquire（可以一直等），入队路径不经过它。
type sendLimiter struct {
	ch chan struct{}
}

func newSendLimiter(max int) *sendLimiter {
	if max <= 0 {
		max = 100
	}
	return &sendLimiter{ch: make(chan struct{}, max)}
}

func (s *sendLimiter) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrSemaphoreTimeout
	}
}

func (s *sendLimiter) Release() {
	select {
	case <-s.ch:
	default:
		// 没 Acquire 就 Release 是编码错误，直接忽略
	}
}
