package aiclient

import (
	"context"
	"fmt"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"

	"resty.dev/v3"
)

// doubaoProvider 豆包视觉模型客户端（OpenAI 兼容接口）
type doubaoProvider struct {
	http *resty.Client
	cfg  config.AIProviderConfig
	log  *logger.Logger
}

func newDoubaoProvider(cfg config.AIProviderConfig, log *logger.Logger) *doubaoProvider {
	client := resty.New()
	client.SetBaseURL(cfg.Endpoint)
	client.SetAuthToken(cfg.APIKey)
	client.SetTimeout(2 * time.Minute)

	return &doubaoProvider{http: client, cfg: cfg, log: log}
}

func (p *doubaoProvider) Name() string {
	return ProviderDoubao
}

// chat completions 请求/响应结构（只取需要的字段）
type doubaoMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type doubaoRequest struct {
	Model       string          `json:"model"`
	Messages    []doubaoMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type doubaoResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze 调用豆包视觉模型分析图片
func (p *doubaoProvider) Analyze(ctx context.Context, req *Request) (*Result, error) {
	body := doubaoRequest{
		Model: p.cfg.Model,
		Messages: []doubaoMessage{
			{
				Role: "user",
				Content: []any{
					map[string]any{"type": "text", "text": buildPrompt(req.Series)},
					map[string]any{"type": "image_url", "image_url": map[string]string{"url": req.ImageBase64}},
				},
			},
		},
		MaxTokens:   4096,
		Temperature: 0.3,
	}

	var result doubaoResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("豆包请求失败: %w", err)
	}

	if !resp.IsSuccess() {
		msg := resp.String()
		if result.Error != nil {
			msg = result.Error.Message
		}
		// 保留状态码，调度器按 429/"rate limit" 特征识别限流错误
		return nil, fmt.Errorf("豆包分析失败，状态码 %d: %s", resp.StatusCode(), msg)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("豆包返回结果为空")
	}

	parsed, err := parseModelOutput(result.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	parsed.Model = p.cfg.Model
	return parsed, nil
}
