package repoclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"

	gocache "github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

// 错误类型标签，上传编排器按此分类处理
const (
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrRateLimited      = "RATE_LIMITED"
	ErrTokenExpired     = "TOKEN_EXPIRED"
	ErrNetworkError     = "NETWORK_ERROR"
	ErrAlreadyExists    = "ALREADY_EXISTS"
	ErrUnknown          = "UNKNOWN"
)

// Error 远端仓库操作的分类错误
type Error struct {
	Type       string // 错误类型标签
	StatusCode int    // HTTP 状态码（网络错误时为 0）
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] 状态码 %d: %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// TypeOf 提取错误的分类标签，非本包错误归为 UNKNOWN
func TypeOf(err error) string {
	if re, ok := err.(*Error); ok {
		return re.Type
	}
	return ErrUnknown
}

// RateLimitInfo 远端 API 配额信息
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Client 远端内容仓库客户端（GitHub 风格的 contents API）
type Client struct {
	http        *resty.Client
	cfg         config.RepoConfig
	log         *logger.Logger
	existsCache *gocache.Cache // 文件存在性预检缓存
}

// New 创建远端仓库客户端
func New(cfg config.RepoConfig, log *logger.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(cfg.APIBase)
	client.SetHeader("Accept", "application/vnd.github+json")
	client.SetAuthToken(cfg.Token)
	client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)

	return &Client{
		http:        client,
		cfg:         cfg,
		log:         log,
		existsCache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// contentRequest contents API 的写入请求体
type contentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

// UploadImage 上传图片到图床仓库
func (c *Client) UploadImage(ctx context.Context, path string, data []byte, message string) error {
	return c.putContent(ctx, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, path, data, message)
}

// CreateFile 在指定仓库创建文件（用于待处理元数据清单）
func (c *Client) CreateFile(ctx context.Context, owner, repo, branch, path string, content []byte, message string) error {
	return c.putContent(ctx, owner, repo, branch, path, content, message)
}

// putContent 通过 contents API 写入文件
func (c *Client) putContent(ctx context.Context, owner, repo, branch, path string, data []byte, message string) error {
	body := contentRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  branch,
	}

	var apiErr struct {
		Message string `json:"message"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr).
		Put(fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path))
	if err != nil {
		return &Error{Type: ErrNetworkError, Message: err.Error()}
	}

	if resp.IsSuccess() {
		// 写入成功后该路径必然存在
		c.existsCache.Set(remoteKey(owner, repo, path), true, gocache.DefaultExpiration)
		return nil
	}

	return c.classify(resp.StatusCode(), apiErr.Message)
}

// CheckFileExists 预检远端是否已存在同名文件（带缓存，不在上传热路径上）
func (c *Client) CheckFileExists(ctx context.Context, path string) (bool, error) {
	key := remoteKey(c.cfg.Owner, c.cfg.Repo, path)
	if cached, ok := c.existsCache.Get(key); ok {
		return cached.(bool), nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Head(fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", c.cfg.Owner, c.cfg.Repo, path, c.cfg.Branch))
	if err != nil {
		return false, &Error{Type: ErrNetworkError, Message: err.Error()}
	}

	switch {
	case resp.IsSuccess():
		c.existsCache.Set(key, true, gocache.DefaultExpiration)
		return true, nil
	case resp.StatusCode() == http.StatusNotFound:
		c.existsCache.Set(key, false, gocache.DefaultExpiration)
		return false, nil
	default:
		return false, c.classify(resp.StatusCode(), resp.String())
	}
}

// GetRateLimit 查询远端 API 配额
func (c *Client) GetRateLimit(ctx context.Context) (*RateLimitInfo, error) {
	var result struct {
		Rate struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"rate"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/rate_limit")
	if err != nil {
		return nil, &Error{Type: ErrNetworkError, Message: err.Error()}
	}
	if !resp.IsSuccess() {
		return nil, c.classify(resp.StatusCode(), resp.String())
	}

	return &RateLimitInfo{
		Limit:     result.Rate.Limit,
		Remaining: result.Rate.Remaining,
		ResetAt:   time.Unix(result.Rate.Reset, 0),
	}, nil
}

// classify 根据状态码和响应消息归类错误
func (c *Client) classify(status int, message string) *Error {
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusUnauthorized:
		return &Error{Type: ErrTokenExpired, StatusCode: status, Message: message}
	case status == http.StatusForbidden && (strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")):
		return &Error{Type: ErrRateLimited, StatusCode: status, Message: message}
	case status == http.StatusForbidden:
		return &Error{Type: ErrPermissionDenied, StatusCode: status, Message: message}
	case status == http.StatusTooManyRequests:
		return &Error{Type: ErrRateLimited, StatusCode: status, Message: message}
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		// contents API 对已存在路径返回 409/422（消息中带 sha 提示）
		if strings.Contains(lower, "sha") || strings.Contains(lower, "already exists") || status == http.StatusConflict {
			return &Error{Type: ErrAlreadyExists, StatusCode: status, Message: message}
		}
		return &Error{Type: ErrUnknown, StatusCode: status, Message: message}
	default:
		return &Error{Type: ErrUnknown, StatusCode: status, Message: message}
	}
}

func remoteKey(owner, repo, path string) string {
	return owner + "/" + repo + "/" + path
}
