package service

import (
	"time"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/model"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// 每天凌晨 3 点执行清理
const maintenanceSchedule = "0 3 * * *"

// MaintenanceService 定时维护服务
// 负责哈希缓存的过期清理和上传历史的滚动删除
type MaintenanceService struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *gorm.DB
	hashCache *HashCacheService
	cron      *cron.Cron
}

// NewMaintenanceService 创建定时维护服务
func NewMaintenanceService(cfg *config.Config, db *gorm.DB, hashCache *HashCacheService, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{
		cfg:       cfg,
		log:       log,
		db:        db,
		hashCache: hashCache,
		cron:      cron.New(),
	}
}

// Start 启动定时维护任务
func (s *MaintenanceService) Start() error {
	if _, err := s.cron.AddFunc(maintenanceSchedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("定时维护服务已启动")
	return nil
}

// Stop 停止定时维护任务，等待正在执行的任务结束
func (s *MaintenanceService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("定时维护服务已停止")
}

// RunOnce 执行一轮维护
func (s *MaintenanceService) RunOnce() {
	s.log.Info("🧹 开始执行定时维护")

	purged := s.hashCache.PurgeExpired()

	cutoff := time.Now().AddDate(0, 0, -s.cfg.Upload.HistoryKeepDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&model.UploadHistory{})
	if result.Error != nil {
		s.log.Errorf("清理上传历史失败: %v", result.Error)
	}

	s.log.Infof("✅ 定时维护完成: 清理哈希缓存 %d 条, 上传历史 %d 条", purged, result.RowsAffected)
}
