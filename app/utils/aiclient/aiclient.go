// Package aiclient 封装图片智能分类的 AI Provider 客户端
package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
)

// Provider 类型常量
const (
	ProviderDoubao     = "doubao"
	ProviderCloudflare = "cloudflare"
)

// Request 单次图片分析请求
type Request struct {
	ImageBase64 string // 带 data URL 前缀的图片内容
	Series      string // 当前选择的系列，影响提示词中的候选分类
}

// Result AI 分析结果
type Result struct {
	Secondary   string   `json:"secondary"`   // 二级分类
	Third       string   `json:"third"`       // 三级分类
	Keywords    []string `json:"keywords"`    // 关键词
	Description string   `json:"description"` // 图片描述
	Filename    string   `json:"filename"`    // 建议文件名
	Confidence  float64  `json:"confidence"`  // 置信度 0-1
	Reasoning   string   `json:"reasoning"`   // 分类依据
	Model       string   `json:"-"`           // 实际使用的模型
}

// Provider 图片分析服务提供方
type Provider interface {
	// Analyze 分析单张图片，错误不做分类解释，由调度器按限流特征匹配重试
	Analyze(ctx context.Context, req *Request) (*Result, error)
	// Name 返回 Provider 标识
	Name() string
}

// New 按类型创建 Provider 实例
func New(providerType string, cfg *config.AIConfig, log *logger.Logger) (Provider, error) {
	switch providerType {
	case ProviderDoubao:
		return newDoubaoProvider(cfg.Doubao, log), nil
	case ProviderCloudflare:
		return newCloudflareProvider(cfg.Cloudflare, log), nil
	default:
		return nil, fmt.Errorf("不支持的 AI Provider: %s", providerType)
	}
}

// parseModelOutput 从模型返回的文本中提取 JSON 结果
// 模型偶尔会在 JSON 前后附加说明文字或代码块标记
func parseModelOutput(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "{"); i >= 0 {
		if j := strings.LastIndex(text, "}"); j > i {
			text = text[i : j+1]
		}
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("解析模型输出失败: %w", err)
	}
	if result.Secondary == "" {
		result.Secondary = "通用"
	}
	return &result, nil
}
