package service

import (
	"context"
	"sync"
	"time"

	"pic-fusion/app/logger"
	"pic-fusion/app/utils/repoclient"
)

const (
	// QuotaCheckInterval 配额检查间隔
	QuotaCheckInterval = 5 * time.Minute
	// QuotaWarnThreshold 剩余配额低于该值时告警
	QuotaWarnThreshold = 100
)

// QuotaSource 配额查询能力
type QuotaSource interface {
	GetRateLimit(ctx context.Context) (*repoclient.RateLimitInfo, error)
}

// QuotaMonitor 远端 API 配额监控服务
// 周期性查询剩余配额，配额不足或令牌失效时提前告警
type QuotaMonitor struct {
	logger   *logger.Logger
	source   QuotaSource
	stopChan chan struct{}
	wg       sync.WaitGroup
	ticker   *time.Ticker

	mu   sync.Mutex
	last *repoclient.RateLimitInfo
}

// NewQuotaMonitor 创建配额监控服务
func NewQuotaMonitor(source QuotaSource, log *logger.Logger) *QuotaMonitor {
	return &QuotaMonitor{
		logger:   log,
		source:   source,
		stopChan: make(chan struct{}),
	}
}

// Start 启动配额监控服务
func (s *QuotaMonitor) Start() {
	s.ticker = time.NewTicker(QuotaCheckInterval)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("配额监控服务已启动")
}

// Stop 停止配额监控服务
func (s *QuotaMonitor) Stop() {
	close(s.stopChan)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.wg.Wait()
	s.logger.Info("配额监控服务已停止")
}

// run 运行配额检查任务
func (s *QuotaMonitor) run() {
	defer s.wg.Done()

	// 立即执行一次检查
	s.checkQuota()

	for {
		select {
		case <-s.ticker.C:
			s.checkQuota()
		case <-s.stopChan:
			return
		}
	}
}

// checkQuota 查询并记录剩余配额
func (s *QuotaMonitor) checkQuota() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := s.source.GetRateLimit(ctx)
	if err != nil {
		switch repoclient.TypeOf(err) {
		case repoclient.ErrTokenExpired:
			s.logger.Warnf("⚠️ 访问令牌已失效，请更新配置中的令牌")
		default:
			s.logger.Errorf("查询 API 配额失败: %v", err)
		}
		return
	}

	s.mu.Lock()
	s.last = info
	s.mu.Unlock()

	if info.Remaining < QuotaWarnThreshold {
		s.logger.Warnf("⚠️ API 配额即将耗尽: 剩余 %d/%d, 重置时间 %s",
			info.Remaining, info.Limit, info.ResetAt.Format(time.RFC3339))
	} else {
		s.logger.Debugf("API 配额检查: 剩余 %d/%d", info.Remaining, info.Limit)
	}
}

// Last 最近一次成功查询到的配额信息
func (s *QuotaMonitor) Last() *repoclient.RateLimitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	return &copied
}
