package model

import (
	"os"
	"path"
	"strings"
	"time"
)

// FileStatus 文件生命周期状态
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"   // 等待上传
	FileStatusUploading FileStatus = "uploading" // 上传中
	FileStatusSuccess   FileStatus = "success"   // 上传成功
	FileStatusError     FileStatus = "error"     // 上传失败
)

// UploadErrorType 上传错误分类
type UploadErrorType string

const (
	ErrTypePermissionDenied UploadErrorType = "PERMISSION_DENIED" // 权限不足，整批终止
	ErrTypeRateLimited      UploadErrorType = "RATE_LIMITED"      // 触发限流
	ErrTypeTokenExpired     UploadErrorType = "TOKEN_EXPIRED"     // 令牌过期，需要重新认证
	ErrTypeNetworkError     UploadErrorType = "NETWORK_ERROR"     // 网络错误
	ErrTypeAlreadyExists    UploadErrorType = "ALREADY_EXISTS"    // 远端同名文件已存在
	ErrTypeDuplicate        UploadErrorType = "DUPLICATE_CONTENT" // 内容重复（命中哈希缓存）
	ErrTypeNoTarget         UploadErrorType = "NO_TARGET"         // 未设置上传目录
	ErrTypeUnknown          UploadErrorType = "UNKNOWN"           // 未分类错误
)

// AIMetadata AI 分析产生的图片元数据
type AIMetadata struct {
	Series              string     `json:"series"`      // 系列：desktop/mobile/avatar
	Category            string     `json:"category"`    // 二级分类
	Subcategory         string     `json:"subcategory"` // 三级分类（可为空）
	Keywords            []string   `json:"keywords"`
	Description         string     `json:"description"`
	FilenameSuggestions []string   `json:"filename_suggestions"`
	DisplayTitle        string     `json:"display_title,omitempty"`
	Confidence          float64    `json:"confidence"`
	Reasoning           string     `json:"reasoning,omitempty"`
	Model               string     `json:"model,omitempty"`
	AnalyzedAt          *time.Time `json:"analyzed_at,omitempty"`
	Error               string     `json:"error,omitempty"` // 分析失败时的回退元数据携带错误信息
}

// UploadFile 一次批量上传中的单个文件记录（仅存在于内存中）
type UploadFile struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TempPath     string          `json:"-"` // 落盘的临时文件路径，记录销毁时一并删除
	Size         int64           `json:"size"`
	OriginalSize int64           `json:"original_size"`
	Compressed   bool            `json:"compressed"`
	Status       FileStatus      `json:"status"`
	Progress     int             `json:"progress"` // 仅在 uploading 期间有意义
	Error        string          `json:"error,omitempty"`
	ErrorType    UploadErrorType `json:"error_type,omitempty"`
	Digest       string          `json:"digest,omitempty"` // 上传时计算的内容摘要

	// 目标路径，仅在 pending 状态下可变
	TargetSeries string `json:"target_series"`
	TargetL1     string `json:"target_l1"`
	TargetL2     string `json:"target_l2"`
	TargetPath   string `json:"target_path"`

	AIMetadata *AIMetadata `json:"ai_metadata,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// BuildTargetPath 根据系列和分类拼接目标路径
func BuildTargetPath(series, l1, l2 string) string {
	if l1 == "" {
		return ""
	}
	parts := []string{"wallpaper", series, l1}
	if l2 != "" {
		parts = append(parts, l2)
	}
	return strings.Join(parts, "/")
}

// SetTarget 更新目标分类，仅在 pending 状态下生效
func (f *UploadFile) SetTarget(series, l1, l2 string) bool {
	if f.Status != FileStatusPending {
		return false
	}
	f.TargetSeries = series
	f.TargetL1 = l1
	f.TargetL2 = l2
	f.TargetPath = BuildTargetPath(series, l1, l2)
	return true
}

// SetError 标记记录为失败状态
func (f *UploadFile) SetError(errType UploadErrorType, message string) {
	f.Status = FileStatusError
	f.ErrorType = errType
	f.Error = message
}

// ResetForRetry 将失败记录重置回待上传状态（唯一允许的状态回退路径）
func (f *UploadFile) ResetForRetry() bool {
	if f.Status != FileStatusError {
		return false
	}
	f.Status = FileStatusPending
	f.Progress = 0
	f.Error = ""
	f.ErrorType = ""
	return true
}

// RemotePath 计算远端仓库中的完整路径
func (f *UploadFile) RemotePath() string {
	return f.TargetPath + "/" + f.Name
}

// Extension 返回小写的文件扩展名（不含点）
func (f *UploadFile) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
}

// ReleaseResources 删除记录关联的临时文件
func (f *UploadFile) ReleaseResources() {
	if f.TempPath != "" {
		_ = os.Remove(f.TempPath)
		f.TempPath = ""
	}
}
