package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pic-fusion/app/logger"
)

// ErrQueueCleared 队列被清空时，尚未开始的任务以该错误结束
var ErrQueueCleared = errors.New("任务队列已清空")

// RateLimiterConfig 速率限制器配置
type RateLimiterConfig struct {
	MaxConcurrent int           // 最大并发请求数
	MinInterval   time.Duration // 相邻派发之间的最小间隔
	RetryAttempts int           // 限流错误的最大重试次数
	RetryDelay    time.Duration // 重试基础延迟，按次数线性退避
}

// NewCloudflareRateLimiter 低配额 Provider 专用的速率限制器
func NewCloudflareRateLimiter(log *logger.Logger) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 3,
		MinInterval:   2000 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    3 * time.Second,
	}, log)
}

// NewDoubaoRateLimiter 高配额 Provider 专用的速率限制器
func NewDoubaoRateLimiter(log *logger.Logger) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		MaxConcurrent: 5,
		MinInterval:   1000 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}, log)
}

// limiterResult 单次任务的最终结果
type limiterResult struct {
	value any
	err   error
}

// limiterTask 队列中的任务，占据 queued 或 in-flight 两种位置之一
type limiterTask struct {
	run      func() (any, error)
	ctx      context.Context
	attempts int
	gen      uint64             // 提交时的队列代数，Clear 之后失效
	done     chan limiterResult // 容量为 1，每个任务恰好收到一次结果
}

// RateLimiter 带限流的任务调度器
// FIFO 派发，受最大并发数和最小派发间隔约束；
// 限流类错误按次数线性退避后插回队首重试，保留原有优先级
type RateLimiter struct {
	cfg RateLimiterConfig
	log *logger.Logger

	mu           sync.Mutex
	queue        []*limiterTask
	active       int
	gen          uint64 // 每次 Clear 递增，用于拦截退避窗口中的重试任务
	lastDispatch time.Time
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(cfg RateLimiterConfig, log *logger.Logger) *RateLimiter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	return &RateLimiter{cfg: cfg, log: log}
}

// Execute 提交任务并阻塞等待结果
// 每次提交恰好得到一次结果；ctx 取消只放弃等待，不中断已派发的任务
func (r *RateLimiter) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	task := &limiterTask{
		run:  fn,
		ctx:  ctx,
		done: make(chan limiterResult, 1),
	}

	r.mu.Lock()
	task.gen = r.gen
	r.queue = append(r.queue, task)
	r.mu.Unlock()
	r.dispatch()

	select {
	case res := <-task.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dispatch 尝试派发队首任务，容量不足或间隔未到时安排下一次检查
func (r *RateLimiter) dispatch() {
	r.mu.Lock()

	// 达到最大并发数或队列为空时不派发
	if r.active >= r.cfg.MaxConcurrent || len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}

	// 距上次派发不足最小间隔时，延后再查，绝不提前派发
	if wait := r.cfg.MinInterval - time.Since(r.lastDispatch); wait > 0 {
		r.mu.Unlock()
		time.AfterFunc(wait, r.dispatch)
		return
	}

	task := r.queue[0]
	r.queue = r.queue[1:]
	r.active++
	r.lastDispatch = time.Now()
	r.mu.Unlock()

	go r.runTask(task)
}

// runTask 执行任务并处理重试
func (r *RateLimiter) runTask(task *limiterTask) {
	value, err := task.run()

	if err != nil && IsRateLimitError(err) && task.attempts < r.cfg.RetryAttempts {
		// 限流错误：线性退避后插回队首，优先于未尝试过的任务
		task.attempts++
		if r.log != nil {
			r.log.Warnf("触发速率限制，%v 后重试 %d/%d: %v",
				r.cfg.RetryDelay*time.Duration(task.attempts), task.attempts, r.cfg.RetryAttempts, err)
		}
		time.AfterFunc(r.cfg.RetryDelay*time.Duration(task.attempts), func() {
			r.mu.Lock()
			// 退避期间队列被清空过，任务不再插回，与排队中的任务同样结束
			if task.gen != r.gen {
				r.mu.Unlock()
				task.done <- limiterResult{err: ErrQueueCleared}
				return
			}
			r.queue = append([]*limiterTask{task}, r.queue...)
			r.mu.Unlock()
			r.dispatch()
		})
	} else {
		task.done <- limiterResult{value: value, err: err}
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()

	// 最小间隔之后继续消费队列
	time.AfterFunc(r.cfg.MinInterval, r.dispatch)
}

// Status 队列状态快照
type LimiterStatus struct {
	QueueLength   int `json:"queue_length"`
	Active        int `json:"active"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status 返回当前队列状态
func (r *RateLimiter) Status() LimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return LimiterStatus{
		QueueLength:   len(r.queue),
		Active:        r.active,
		MaxConcurrent: r.cfg.MaxConcurrent,
	}
}

// Clear 清空队列，尚未派发的任务以 ErrQueueCleared 结束，已派发的任务继续执行
// 处于重试退避窗口中的任务同样被清掉，不会在退避结束后再次执行
func (r *RateLimiter) Clear() {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.gen++
	r.mu.Unlock()

	for _, task := range pending {
		task.done <- limiterResult{err: ErrQueueCleared}
	}
}

// IsRateLimitError 判断是否是限流类错误（可重试）
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit_exceeded") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "频率超限")
}
