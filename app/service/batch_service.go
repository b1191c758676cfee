package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/model"
	"pic-fusion/app/utils/imagehelper"

	"github.com/google/uuid"
)

// BatchService 管理一次批量上传中的文件记录
// 记录只存在于内存中，原始内容落盘在临时目录，记录销毁时一并清理
type BatchService struct {
	cfg *config.Config
	log *logger.Logger

	mu    sync.RWMutex
	files []*model.UploadFile
}

// NewBatchService 创建批次管理服务
func NewBatchService(cfg *config.Config, log *logger.Logger) *BatchService {
	return &BatchService{cfg: cfg, log: log}
}

// ValidateFilename 校验文件扩展名是否允许
func (s *BatchService) ValidateFilename(name string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, allowed := range s.cfg.Upload.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("不支持的文件格式: %s", ext)
}

// AddFile 将落盘后的临时文件加入批次
// 自动检测图片系列；超过压缩阈值的图片自动压缩
func (s *BatchService) AddFile(name, tempPath string, size int64) (*model.UploadFile, error) {
	if err := s.ValidateFilename(name); err != nil {
		return nil, err
	}
	if size > s.cfg.Upload.MaxFileSize() {
		return nil, fmt.Errorf("文件大小超过限制 (最大 %dMB)", s.cfg.Upload.MaxFileSizeMB)
	}

	file := &model.UploadFile{
		ID:           uuid.NewString(),
		Name:         name,
		TempPath:     tempPath,
		Size:         size,
		OriginalSize: size,
		Status:       model.FileStatusPending,
		CreatedAt:    time.Now(),
	}

	// 按尺寸检测系列，AI 分析或手动设置可覆盖
	if w, h, err := imagehelper.Dimensions(tempPath); err == nil {
		detection := imagehelper.DetectSeries(w, h)
		file.TargetSeries = detection.Series
		s.log.Debugf("图片系列检测: %s -> %s (%.2f)", name, detection.Series, detection.Confidence)
	} else {
		file.TargetSeries = imagehelper.SeriesDesktop
		s.log.Warnf("读取图片尺寸失败，默认桌面系列: %s, %v", name, err)
	}

	// 大图自动压缩
	threshold := int64(s.cfg.Upload.CompressOverMB) * 1024 * 1024
	if threshold > 0 && size > threshold {
		compressedPath := tempPath + ".compressed.jpg"
		newSize, err := imagehelper.Compress(tempPath, compressedPath, imagehelper.DefaultCompressOptions())
		if err != nil {
			s.log.Warnf("图片压缩失败，使用原图: %s, %v", name, err)
		} else if newSize < size {
			_ = os.Remove(tempPath)
			file.TempPath = compressedPath
			file.Size = newSize
			file.Compressed = true
			s.log.Infof("图片已压缩: %s, 原始 %.2fMB, 压缩后 %.2fMB",
				name, float64(size)/1024/1024, float64(newSize)/1024/1024)
		} else {
			_ = os.Remove(compressedPath)
		}
	}

	s.mu.Lock()
	s.files = append(s.files, file)
	s.mu.Unlock()

	return file, nil
}

// List 返回批次内全部记录（按加入顺序）
func (s *BatchService) List() []*model.UploadFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.UploadFile, len(s.files))
	copy(out, s.files)
	return out
}

// Get 按 ID 查找记录
func (s *BatchService) Get(id string) *model.UploadFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

func (s *BatchService) findLocked(id string) *model.UploadFile {
	for _, f := range s.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// PendingFiles 当前待上传的记录
func (s *BatchService) PendingFiles() []*model.UploadFile {
	return s.filterByStatus(model.FileStatusPending)
}

// ErrorFiles 当前失败的记录
func (s *BatchService) ErrorFiles() []*model.UploadFile {
	return s.filterByStatus(model.FileStatusError)
}

func (s *BatchService) filterByStatus(status model.FileStatus) []*model.UploadFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.UploadFile
	for _, f := range s.files {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// Remove 移除单条记录并释放其临时资源
func (s *BatchService) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			f.ReleaseResources()
			s.files = append(s.files[:i], s.files[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveMany 批量移除记录
func (s *BatchService) RemoveMany(ids []string) int {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0]
	removed := 0
	for _, f := range s.files {
		if _, ok := idSet[f.ID]; ok {
			f.ReleaseResources()
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.files = kept
	return removed
}

// Clear 清空整个批次
func (s *BatchService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		f.ReleaseResources()
	}
	s.files = nil
}

// ClearSuccess 移除已成功的记录，释放内存和临时文件
func (s *BatchService) ClearSuccess() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0]
	removed := 0
	for _, f := range s.files {
		if f.Status == model.FileStatusSuccess {
			f.ReleaseResources()
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.files = kept
	return removed
}

// MarkUploading 将 pending 记录原子地转入 uploading 状态
// 返回 false 表示记录不存在或已离开 pending，调用方应跳过该记录；
// 转入 uploading 后目标路径即被冻结，迟到的分析结果无法再改写
func (s *BatchService) MarkUploading(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.findLocked(id)
	if f == nil || f.Status != model.FileStatusPending {
		return false
	}
	f.Status = model.FileStatusUploading
	f.Progress = 0
	return true
}

// MarkSuccess 标记记录上传成功
func (s *BatchService) MarkSuccess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findLocked(id); f != nil {
		f.Status = model.FileStatusSuccess
		f.Progress = 100
	}
}

// MarkFailed 标记记录上传失败
func (s *BatchService) MarkFailed(id string, errType model.UploadErrorType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findLocked(id); f != nil {
		f.SetError(errType, message)
	}
}

// SetDigest 记录上传时计算出的内容摘要
func (s *BatchService) SetDigest(id, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findLocked(id); f != nil {
		f.Digest = digest
	}
}

// FailAllPending 将所有 pending 记录标记为指定错误，返回标记数量
// 用于权限短路：一次权限失败后剩余文件不可能成功
func (s *BatchService) FailAllPending(errType model.UploadErrorType, message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	for _, f := range s.files {
		if f.Status == model.FileStatusPending {
			f.SetError(errType, message)
			marked++
		}
	}
	return marked
}

// HasPending 是否还有待上传记录
func (s *BatchService) HasPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.Status == model.FileStatusPending {
			return true
		}
	}
	return false
}

// PendingWithoutTarget 待上传但尚未设置目标路径的记录数
func (s *BatchService) PendingWithoutTarget() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	missing := 0
	for _, f := range s.files {
		if f.Status == model.FileStatusPending && f.TargetPath == "" {
			missing++
		}
	}
	return missing
}

// UpdateTarget 更新单条记录的目标分类，仅 pending 状态生效
func (s *BatchService) UpdateTarget(id, series, l1, l2 string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.findLocked(id)
	if f == nil {
		return false
	}
	return f.SetTarget(series, l1, l2)
}

// UpdateTargets 批量更新目标分类
func (s *BatchService) UpdateTargets(ids []string, series, l1, l2 string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, id := range ids {
		if f := s.findLocked(id); f != nil && f.SetTarget(series, l1, l2) {
			updated++
		}
	}
	return updated
}

// SetAIMetadata 写入 AI 分析结果
// autoApply 为 true 且记录仍处于 pending 时，自动按推荐分类覆盖目标路径；
// 已进入 uploading/success/error 的记录不受迟到的分析结果影响
func (s *BatchService) SetAIMetadata(id string, md *model.AIMetadata, autoApply bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findLocked(id)
	if f == nil {
		return false
	}
	if f.Status != model.FileStatusPending {
		return false
	}

	f.AIMetadata = md
	if autoApply && md != nil && md.Series != "" && md.Category != "" {
		f.SetTarget(md.Series, md.Category, md.Subcategory)
	}
	return true
}

// ApplyAIRecommendation 手动应用 AI 推荐的分类
func (s *BatchService) ApplyAIRecommendation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findLocked(id)
	if f == nil || f.AIMetadata == nil || f.Status != model.FileStatusPending {
		return false
	}
	md := f.AIMetadata
	if md.Series == "" || md.Category == "" {
		return false
	}
	return f.SetTarget(md.Series, md.Category, md.Subcategory)
}

// ApplyAllAIRecommendations 批量应用 AI 推荐，返回应用成功的数量
func (s *BatchService) ApplyAllAIRecommendations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, f := range s.files {
		if f.Status != model.FileStatusPending || f.AIMetadata == nil {
			continue
		}
		md := f.AIMetadata
		if md.Series != "" && md.Category != "" && f.SetTarget(md.Series, md.Category, md.Subcategory) {
			applied++
		}
	}
	return applied
}

// ResetFailed 将失败记录重置回待上传状态，返回重置数量
func (s *BatchService) ResetFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for _, f := range s.files {
		if f.ResetForRetry() {
			reset++
		}
	}
	return reset
}

// ShouldWarnBatchSize 批量数量是否超过警告阈值
func (s *BatchService) ShouldWarnBatchSize(count int) bool {
	return count > s.cfg.Upload.BatchWarnThreshold
}

// EstimateUploadSeconds 估算上传耗时（秒），每个文件约 2.5 秒含间隔
func (s *BatchService) EstimateUploadSeconds(count int) int {
	return (count*5 + 1) / 2
}
