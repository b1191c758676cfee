package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/model"
	"pic-fusion/app/utils/aiclient"
)

// AnalyzeFn 分析单个文件并返回元数据，由调用方注入便于测试
type AnalyzeFn func(ctx context.Context, file *model.UploadFile) (*model.AIMetadata, error)

// AnalysisService AI 分析服务
// 以固定并发数驱动批次内文件的分析，单个文件失败不影响其他文件
type AnalysisService struct {
	cfg   *config.Config
	log   *logger.Logger
	batch *BatchService

	// 每个 Provider 独享一个速率限制器，互不共享配额
	limiters  map[string]*RateLimiter
	providers map[string]aiclient.Provider

	mu        sync.Mutex
	analyzing bool
	remaining int
}

// NewAnalysisService 创建 AI 分析服务
func NewAnalysisService(cfg *config.Config, batch *BatchService, log *logger.Logger) *AnalysisService {
	return &AnalysisService{
		cfg:   cfg,
		log:   log,
		batch: batch,
		limiters: map[string]*RateLimiter{
			aiclient.ProviderDoubao:     NewDoubaoRateLimiter(log),
			aiclient.ProviderCloudflare: NewCloudflareRateLimiter(log),
		},
		providers: make(map[string]aiclient.Provider),
	}
}

// AnalysisStatus 分析进度快照
type AnalysisStatus struct {
	Analyzing bool `json:"analyzing"`
	Remaining int  `json:"remaining"`
}

// Status 返回当前分析进度
func (s *AnalysisService) Status() AnalysisStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AnalysisStatus{Analyzing: s.analyzing, Remaining: s.remaining}
}

// AnalyzePending 分析批次内所有待上传且尚无元数据的文件
func (s *AnalysisService) AnalyzePending(ctx context.Context) (int, error) {
	if !s.cfg.AI.Enabled {
		return 0, fmt.Errorf("AI 分析未启用")
	}

	var targets []*model.UploadFile
	for _, f := range s.batch.List() {
		if f.Status == model.FileStatusPending && f.AIMetadata == nil {
			targets = append(targets, f)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	s.AnalyzeAll(ctx, targets, s.analyzeOne, s.cfg.AI.Concurrency)
	return len(targets), nil
}

// AnalyzeAll 以 concurrency 个并发工作者分析给定文件
// 工作者从共享队列中取任务，队列弹出互斥，保证每个文件至多分析一次；
// 分析失败时写入携带错误信息的回退元数据，不中断其他文件
func (s *AnalysisService) AnalyzeAll(ctx context.Context, files []*model.UploadFile, analyzeOne AnalyzeFn, concurrency int) {
	if len(files) == 0 {
		return
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(files) {
		concurrency = len(files)
	}

	s.mu.Lock()
	s.analyzing = true
	s.remaining = len(files)
	s.mu.Unlock()

	queue := make([]*model.UploadFile, len(files))
	copy(queue, files)
	var queueMu sync.Mutex

	pop := func() *model.UploadFile {
		queueMu.Lock()
		defer queueMu.Unlock()
		if len(queue) == 0 {
			return nil
		}
		f := queue[0]
		queue = queue[1:]
		return f
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				file := pop()
				if file == nil {
					return
				}

				md, err := analyzeOne(ctx, file)
				if err != nil {
					s.log.Errorf("AI 分析失败: %s, %v", file.Name, err)
					md = s.fallbackMetadata(file, err)
				}
				// 写回只作用于弹出的这条记录；迟到的结果不会影响已开始上传的文件
				s.batch.SetAIMetadata(file.ID, md, true)

				s.mu.Lock()
				s.remaining--
				s.mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.analyzing = false
	s.remaining = 0
	s.mu.Unlock()
}

// analyzeOne 默认的单文件分析实现：经过 Provider 专属限流器调用 AI
func (s *AnalysisService) analyzeOne(ctx context.Context, file *model.UploadFile) (*model.AIMetadata, error) {
	providerType := s.cfg.AI.DefaultProvider
	provider, err := s.provider(providerType)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file.TempPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	req := &aiclient.Request{
		ImageBase64: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		Series:      file.TargetSeries,
	}

	value, err := s.limiters[providerType].Execute(ctx, func() (any, error) {
		return provider.Analyze(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	result := value.(*aiclient.Result)

	now := time.Now()
	return &model.AIMetadata{
		Series:              file.TargetSeries,
		Category:            result.Secondary,
		Subcategory:         result.Third,
		Keywords:            result.Keywords,
		Description:         result.Description,
		FilenameSuggestions: filenameSuggestions(result),
		Confidence:          result.Confidence,
		Reasoning:           result.Reasoning,
		Model:               result.Model,
		AnalyzedAt:          &now,
	}, nil
}

// provider 懒加载 Provider 实例
func (s *AnalysisService) provider(providerType string) (aiclient.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[providerType]; ok {
		return p, nil
	}
	p, err := aiclient.New(providerType, &s.cfg.AI, s.log)
	if err != nil {
		return nil, err
	}
	s.providers[providerType] = p
	return p, nil
}

// fallbackMetadata 分析失败时的回退元数据，携带错误信息
func (s *AnalysisService) fallbackMetadata(file *model.UploadFile, err error) *model.AIMetadata {
	return &model.AIMetadata{
		Series:   file.TargetSeries,
		Category: "通用",
		Error:    err.Error(),
	}
}

// filenameSuggestions 生成 3 个候选文件名
func filenameSuggestions(result *aiclient.Result) []string {
	base := result.Filename
	if base == "" {
		base = "未命名"
	}
	keyword := "图片"
	if len(result.Keywords) > 0 {
		keyword = result.Keywords[0]
	}
	stamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	return []string{
		base,
		fmt.Sprintf("%s-%s", base, stamp[len(stamp)-6:]),
		fmt.Sprintf("%s-%s", result.Secondary, keyword),
	}
}
