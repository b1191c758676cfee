package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterConcurrencyCap(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 3,
		MinInterval:   time.Millisecond,
	}, testLogger())

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limiter.Execute(context.Background(), func() (any, error) {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestRateLimiterMinInterval(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 5,
		MinInterval:   50 * time.Millisecond,
	}, testLogger())

	var mu sync.Mutex
	var starts []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = limiter.Execute(context.Background(), func() (any, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, starts, 3)
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		for j := 0; j < i; j++ {
			gap := starts[i].Sub(starts[j])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, 40*time.Millisecond, "派发间隔不足")
		}
	}
}

func TestRateLimiterRetryThenSuccess(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	}, testLogger())

	var calls int32
	value, err := limiter.Execute(context.Background(), func() (any, error) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			return nil, errors.New("429 too many requests")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRateLimiterRetryExhausted(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	}, testLogger())

	var calls int32
	_, err := limiter.Execute(context.Background(), func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("rate limit exceeded")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	// 首次尝试 + 2 次重试
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRateLimiterNonRetryableError(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	}, testLogger())

	var calls int32
	_, err := limiter.Execute(context.Background(), func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("permission denied")
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "非限流错误不应重试")
}

func TestRateLimiterClear(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
	}, testLogger())

	blocker := make(chan struct{})
	var wg sync.WaitGroup

	// 占住唯一的并发槽位
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = limiter.Execute(context.Background(), func() (any, error) {
			<-blocker
			return nil, nil
		})
	}()

	// 等待首个任务派发后，再排入一个会被 Clear 掉的任务
	require.Eventually(t, func() bool {
		return limiter.Status().Active == 1
	}, time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := limiter.Execute(context.Background(), func() (any, error) {
			return nil, nil
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return limiter.Status().QueueLength == 1
	}, time.Second, 5*time.Millisecond)

	limiter.Clear()
	close(blocker)
	wg.Wait()

	assert.ErrorIs(t, <-errCh, ErrQueueCleared)
}

func TestRateLimiterClearDuringRetryBackoff(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 1,
		MinInterval:   time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}, testLogger())

	var calls int32
	errCh := make(chan error, 1)
	go func() {
		_, err := limiter.Execute(context.Background(), func() (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("429 too many requests")
		})
		errCh <- err
	}()

	// 首次尝试失败后任务进入退避窗口，此时既不在队列中也不在执行中
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1 && limiter.Status().Active == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, limiter.Status().QueueLength)

	limiter.Clear()

	assert.ErrorIs(t, <-errCh, ErrQueueCleared)
	// 退避结束后任务不得再次执行
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("rate_limit_exceeded")))
	assert.True(t, IsRateLimitError(errors.New("请求频率超限")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}
