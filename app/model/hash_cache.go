package model

import (
	"time"
)

// HashCacheEntry 内容哈希去重缓存条目
// 内存中的视图是事实来源，该表只是落盘影子，用于跨进程重启保留记录
type HashCacheEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Digest     string    `gorm:"size:64;uniqueIndex;not null;comment:SHA-256内容摘要" json:"digest"`
	Filename   string    `gorm:"size:255;not null;comment:原始文件名" json:"filename"`
	Path       string    `gorm:"size:500;not null;comment:远端路径" json:"path"`
	UploadedAt time.Time `gorm:"index;comment:上传时间" json:"uploaded_at"`
}

// TableName 指定表名
func (HashCacheEntry) TableName() string {
	return "hash_cache_entries"
}

// IsExpired 判断条目是否超过 TTL
func (e *HashCacheEntry) IsExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.UploadedAt) > ttl
}
