package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/model"
	"pic-fusion/app/utils"
	"pic-fusion/app/utils/repoclient"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RemoteWriter 上传编排器依赖的远端仓库写入能力
type RemoteWriter interface {
	UploadImage(ctx context.Context, path string, data []byte, message string) error
	CreateFile(ctx context.Context, owner, repo, branch, path string, content []byte, message string) error
}

// FileOutcome 单个文件的上传结果
type FileOutcome struct {
	FileID    string                `json:"file_id"`
	Name      string                `json:"name"`
	Success   bool                  `json:"success"`
	ErrorType model.UploadErrorType `json:"error_type,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// ManifestResult 清单写入结果
type ManifestResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// permissionDeniedMessage 权限错误的统一提示，短路标记与单文件归类共用
const permissionDeniedMessage = "权限不足：您没有该仓库的写入权限"

// UploadReport 一次批量上传的汇总结果
type UploadReport struct {
	Results         []FileOutcome   `json:"results"`
	PermissionError bool            `json:"permission_error"`
	Manifest        *ManifestResult `json:"manifest,omitempty"`
}

// UploadService 上传编排器
// 严格按批次顺序串行上传，上传前先查哈希缓存去重，
// 权限错误触发整批短路，结束后尽力写入待处理元数据清单
type UploadService struct {
	cfg       *config.Config
	log       *logger.Logger
	batch     *BatchService
	hashCache *HashCacheService
	remote    RemoteWriter
	db        *gorm.DB

	mu        sync.Mutex
	uploading bool
}

// NewUploadService 创建上传编排器
func NewUploadService(cfg *config.Config, batch *BatchService, hashCache *HashCacheService, remote RemoteWriter, db *gorm.DB, log *logger.Logger) *UploadService {
	return &UploadService{
		cfg:       cfg,
		log:       log,
		batch:     batch,
		hashCache: hashCache,
		remote:    remote,
		db:        db,
	}
}

// IsUploading 当前是否有批量上传在进行中
func (s *UploadService) IsUploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploading
}

// UploadAll 按批次顺序上传所有待上传文件
// 每个待上传文件必须已设置目标路径；相邻上传之间等待固定间隔；
// 权限错误立即中止并将剩余待上传文件全部标记为失败
func (s *UploadService) UploadAll(ctx context.Context) (*UploadReport, error) {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return nil, fmt.Errorf("批量上传正在进行中")
	}
	s.uploading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
	}()

	pendingCount := len(s.batch.PendingFiles())
	if pendingCount == 0 {
		return &UploadReport{}, nil
	}

	// 所有待上传文件必须已设置目标路径
	if missing := s.batch.PendingWithoutTarget(); missing > 0 {
		return nil, fmt.Errorf("有 %d 个文件未设置上传目录", missing)
	}

	s.log.Infof("🚀 开始批量上传，共 %d 个文件", pendingCount)

	report := &UploadReport{}
	var uploaded []*model.UploadFile

	for _, file := range s.batch.List() {
		// pending 判定与转入 uploading 在批次锁内一次完成，
		// 从这里开始目标路径冻结，状态只由编排器推进
		if !s.batch.MarkUploading(file.ID) {
			continue
		}

		outcome := s.uploadOne(ctx, file)
		report.Results = append(report.Results, outcome)

		if outcome.Success {
			uploaded = append(uploaded, file)
		}

		// 权限错误对整批都是致命的，后续文件不可能成功
		if outcome.ErrorType == model.ErrTypePermissionDenied {
			report.PermissionError = true
			s.batch.FailAllPending(model.ErrTypePermissionDenied, permissionDeniedMessage)
			s.log.Errorf("⛔ 权限不足，中止批量上传，剩余文件已标记为失败")
			break
		}

		// 相邻上传之间等待固定间隔，避免触发远端限流（最后一个之后不等待）
		if s.batch.HasPending() {
			select {
			case <-time.After(s.cfg.Upload.UploadDelay()):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}
	}

	s.log.Infof("✅ 批量上传结束: 成功 %d / %d", len(uploaded), len(report.Results))

	// 清单写入是尽力而为的，失败不回退任何文件的成功状态
	if len(uploaded) > 0 && !report.PermissionError {
		report.Manifest = s.writeManifest(ctx, uploaded)
	}

	return report, nil
}

// uploadOne 上传单个文件并维护其状态机
// 调用时记录已由 MarkUploading 转入 uploading，此后目标路径不再变化，
// 状态变更全部经由 BatchService 的加锁方法完成
func (s *UploadService) uploadOne(ctx context.Context, file *model.UploadFile) FileOutcome {
	fail := func(errType model.UploadErrorType, msg string) FileOutcome {
		s.batch.MarkFailed(file.ID, errType, msg)
		return FileOutcome{FileID: file.ID, Name: file.Name, ErrorType: errType, Error: msg}
	}

	data, err := os.ReadFile(file.TempPath)
	if err != nil {
		return fail(model.ErrTypeUnknown, "读取文件失败: "+err.Error())
	}

	// 内容去重：命中未过期的哈希缓存时直接判重，不发起网络写入
	digest := utils.Sha256Hex(data)
	s.batch.SetDigest(file.ID, digest)
	if existing := s.hashCache.Lookup(digest); existing != nil {
		outcome := fail(model.ErrTypeDuplicate, fmt.Sprintf("文件内容重复，已在 %s 上传过", existing.Path))
		s.appendHistory(file, digest, model.HistoryStatusError)
		return outcome
	}

	remotePath := file.RemotePath()
	message := "Upload: " + file.Name

	if err := s.remote.UploadImage(ctx, remotePath, data, message); err != nil {
		errType, msg := classifyUploadError(err)
		outcome := fail(errType, msg)
		s.appendHistory(file, digest, model.HistoryStatusError)
		s.log.Warnf("❌ 上传失败: %s, 类型=%s, %v", file.Name, errType, err)
		return outcome
	}

	s.batch.MarkSuccess(file.ID)
	s.hashCache.Record(digest, file.Name, remotePath)
	s.appendHistory(file, digest, model.HistoryStatusSuccess)
	s.log.Infof("📤 上传成功: %s -> %s", file.Name, remotePath)

	return FileOutcome{FileID: file.ID, Name: file.Name, Success: true}
}

// RetryFailed 将所有失败文件重置为待上传后重新执行批量上传
func (s *UploadService) RetryFailed(ctx context.Context) (*UploadReport, error) {
	reset := s.batch.ResetFailed()
	if reset == 0 {
		return &UploadReport{}, nil
	}
	s.log.Infof("🔄 重试 %d 个失败文件", reset)
	return s.UploadAll(ctx)
}

// appendHistory 记录上传历史（尽力而为）
func (s *UploadService) appendHistory(file *model.UploadFile, digest, status string) {
	if s.db == nil {
		return
	}
	record := model.UploadHistory{
		Filename: file.Name,
		Digest:   digest,
		Series:   file.TargetSeries,
		Category: file.TargetPath,
		Path:     file.RemotePath(),
		Size:     file.Size,
		Status:   status,
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.log.Errorf("写入上传历史失败: %v", err)
	}
}

// writeManifest 为成功上传的文件生成待处理元数据清单并写入远端
func (s *UploadService) writeManifest(ctx context.Context, uploaded []*model.UploadFile) *ManifestResult {
	owner, repo, branch := s.cfg.Repo.MetadataTarget()

	manifest := model.PendingManifest{
		Version:   1,
		CreatedAt: time.Now(),
		Source:    "pic-fusion",
		Target:    model.TargetRepo{Owner: s.cfg.Repo.Owner, Repo: s.cfg.Repo.Repo, Branch: s.cfg.Repo.Branch},
	}

	for _, file := range uploaded {
		ai := file.AIMetadata
		if ai == nil {
			// 没有 AI 元数据时用文件名关键词作为确定性回退
			ai = &model.AIMetadata{
				Series:   file.TargetSeries,
				Keywords: utils.ExtractKeywordsFromFilename(file.Name),
				Model:    "none",
			}
		}
		manifest.Images = append(manifest.Images, model.ManifestImage{
			Series:       file.TargetSeries,
			RelativePath: file.RemotePath(),
			Category:     file.TargetL1,
			Subcategory:  file.TargetL2,
			Filename:     file.Name,
			CreatedAt:    time.Now(),
			Size:         file.Size,
			Format:       file.Extension(),
			Digest:       file.Digest,
			AI:           ai,
		})
	}

	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return &ManifestResult{Success: false, Count: len(uploaded), Error: err.Error()}
	}

	filename := fmt.Sprintf("%d-%s.json", time.Now().UnixMilli(), uuid.NewString()[:6])
	manifestPath := s.cfg.Repo.MetadataPendingDir + "/" + filename

	if err := s.remote.CreateFile(ctx, owner, repo, branch, manifestPath,
		content, "Add pending metadata: "+filename); err != nil {
		s.log.Errorf("写入元数据清单失败: %v", err)
		return &ManifestResult{Success: false, Count: len(uploaded), Error: err.Error()}
	}

	s.log.Infof("📋 元数据清单已写入: %s (%d 张图片)", manifestPath, len(uploaded))
	return &ManifestResult{Success: true, Path: manifestPath, Count: len(uploaded)}
}

// classifyUploadError 将远端错误归类并生成用户可读的错误信息
func classifyUploadError(err error) (model.UploadErrorType, string) {
	switch repoclient.TypeOf(err) {
	case repoclient.ErrPermissionDenied:
		return model.ErrTypePermissionDenied, permissionDeniedMessage
	case repoclient.ErrRateLimited:
		return model.ErrTypeRateLimited, "API 请求过于频繁，请稍后重试"
	case repoclient.ErrTokenExpired:
		return model.ErrTypeTokenExpired, "登录已过期，请重新登录"
	case repoclient.ErrNetworkError:
		return model.ErrTypeNetworkError, "网络连接失败，请检查网络"
	case repoclient.ErrAlreadyExists:
		return model.ErrTypeAlreadyExists, "文件已存在，请勿重复上传"
	default:
		return model.ErrTypeUnknown, "上传失败: " + err.Error()
	}
}
