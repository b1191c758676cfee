package aiclient

import (
	"context"
	"fmt"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"

	"resty.dev/v3"
)

// cloudflareProvider Cloudflare Workers AI 客户端
// 通过部署在 Workers 上的代理访问视觉模型
type cloudflareProvider struct {
	http *resty.Client
	cfg  config.AIProviderConfig
	log  *logger.Logger
}

func newCloudflareProvider(cfg config.AIProviderConfig, log *logger.Logger) *cloudflareProvider {
	client := resty.New()
	client.SetBaseURL(cfg.Endpoint)
	client.SetAuthToken(cfg.APIKey)
	client.SetTimeout(2 * time.Minute)

	return &cloudflareProvider{http: client, cfg: cfg, log: log}
}

func (p *cloudflareProvider) Name() string {
	return ProviderCloudflare
}

type cloudflareRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Analyze 调用 Workers AI 分析图片
func (p *cloudflareProvider) Analyze(ctx context.Context, req *Request) (*Result, error) {
	body := cloudflareRequest{
		Model:  p.cfg.Model,
		Prompt: buildPrompt(req.Series),
		Image:  req.ImageBase64,
	}

	var result cloudflareResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post("/analyze")
	if err != nil {
		return nil, fmt.Errorf("Cloudflare 请求失败: %w", err)
	}

	if !resp.IsSuccess() || !result.Success {
		msg := resp.String()
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return nil, fmt.Errorf("Cloudflare 分析失败，状态码 %d: %s", resp.StatusCode(), msg)
	}

	parsed, err := parseModelOutput(result.Result.Response)
	if err != nil {
		return nil, err
	}
	parsed.Model = p.cfg.Model
	return parsed, nil
}
