package model

import (
	"time"
)

// UploadHistory 上传历史记录
type UploadHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Filename  string    `gorm:"size:255;not null" json:"filename"`
	Digest    string    `gorm:"size:64;index;comment:SHA-256内容摘要" json:"digest"`
	Series    string    `gorm:"size:20" json:"series"`
	Category  string    `gorm:"size:100" json:"category"`
	Path      string    `gorm:"size:500;not null;comment:远端路径" json:"path"`
	Size      int64     `json:"size"`
	Status    string    `gorm:"size:20;default:success" json:"status"` // success 或 error
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (UploadHistory) TableName() string {
	return "upload_histories"
}

// 历史记录状态常量
const (
	HistoryStatusSuccess = "success"
	HistoryStatusError   = "error"
)
