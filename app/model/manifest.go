package model

import (
	"time"
)

// TargetRepo 清单指向的目标仓库
type TargetRepo struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// ManifestImage 清单中的单张图片元数据
type ManifestImage struct {
	Series       string      `json:"series"`
	RelativePath string      `json:"relativePath"`
	Category     string      `json:"category"`
	Subcategory  string      `json:"subcategory"`
	Filename     string      `json:"filename"`
	CreatedAt    time.Time   `json:"createdAt"`
	Size         int64       `json:"size"`
	Format       string      `json:"format"`
	Digest       string      `json:"digest"`
	AI           *AIMetadata `json:"ai"`
}

// PendingManifest 一次批量上传完成后生成的待处理元数据文档
// 写入远端仓库的 metadata-pending 目录，由外部元数据管线消费
type PendingManifest struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	Source    string          `json:"source"`
	Target    TargetRepo      `json:"targetRepo"`
	Images    []ManifestImage `json:"images"`
}
