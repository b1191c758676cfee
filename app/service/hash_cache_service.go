package service

import (
	"sort"
	"sync"
	"time"

	"pic-fusion/app/logger"
	"pic-fusion/app/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 延迟落盘的去抖时间
const hashCacheFlushDelay = time.Second

// HashCacheService 内容哈希去重缓存
// 内存中的 map 是事实来源；sqlite 表只是尽力而为的持久化影子，
// 写入会合并去抖，查询永远走内存视图
type HashCacheService struct {
	db       *gorm.DB
	log      *logger.Logger
	capacity int
	ttl      time.Duration

	mu         sync.Mutex
	entries    map[string]*model.HashCacheEntry
	dirty      bool
	flushTimer *time.Timer
}

// NewHashCacheService 创建哈希缓存服务并从数据库加载历史记录
func NewHashCacheService(db *gorm.DB, capacity int, ttl time.Duration, log *logger.Logger) (*HashCacheService, error) {
	s := &HashCacheService{
		db:       db,
		log:      log,
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*model.HashCacheEntry),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load 从影子表加载，过期条目在加载时即被丢弃
func (s *HashCacheService) load() error {
	var rows []model.HashCacheEntry
	if err := s.db.Find(&rows).Error; err != nil {
		return err
	}

	now := time.Now()
	expired := 0
	for i := range rows {
		e := rows[i]
		if e.IsExpired(s.ttl, now) {
			expired++
			continue
		}
		s.entries[e.Digest] = &e
	}

	if expired > 0 {
		// 过期条目不再可见，物理清理推迟到下次落盘
		s.dirty = true
		s.scheduleFlushLocked()
	}
	s.log.Infof("哈希缓存已加载: %d 条有效记录, %d 条已过期", len(s.entries), expired)
	return nil
}

// Lookup 查询摘要对应的历史上传记录，过期条目视为不存在
func (s *HashCacheService) Lookup(digest string) *model.HashCacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[digest]
	if !ok {
		return nil
	}
	if entry.IsExpired(s.ttl, time.Now()) {
		return nil
	}
	copied := *entry
	return &copied
}

// Record 记录一次成功上传，超出容量时淘汰时间最早的条目
func (s *HashCacheService) Record(digest, filename, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[digest] = &model.HashCacheEntry{
		Digest:     digest,
		Filename:   filename,
		Path:       path,
		UploadedAt: time.Now(),
	}

	if len(s.entries) > s.capacity {
		s.evictLocked()
	}

	s.dirty = true
	s.scheduleFlushLocked()
}

// evictLocked 按时间戳从旧到新淘汰，直到回到容量上限
func (s *HashCacheService) evictLocked() {
	type aged struct {
		digest     string
		uploadedAt time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for d, e := range s.entries {
		all = append(all, aged{digest: d, uploadedAt: e.UploadedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].uploadedAt.Before(all[j].uploadedAt) })

	over := len(s.entries) - s.capacity
	for i := 0; i < over; i++ {
		delete(s.entries, all[i].digest)
	}
	s.log.Infof("哈希缓存超出容量，已淘汰 %d 条最旧记录", over)
}

// PurgeExpired 主动清理过期条目（由定时维护任务调用）
func (s *HashCacheService) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	purged := 0
	for digest, entry := range s.entries {
		if entry.IsExpired(s.ttl, now) {
			delete(s.entries, digest)
			purged++
		}
	}

	if purged > 0 {
		s.dirty = true
		s.scheduleFlushLocked()
		s.log.Infof("清理了 %d 条过期的哈希缓存记录", purged)
	}
	return purged
}

// Clear 清空缓存和影子表
func (s *HashCacheService) Clear() error {
	s.mu.Lock()
	s.entries = make(map[string]*model.HashCacheEntry)
	s.dirty = false
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.mu.Unlock()

	if err := s.db.Where("1 = 1").Delete(&model.HashCacheEntry{}).Error; err != nil {
		return err
	}
	s.log.Info("哈希缓存已清空")
	return nil
}

// Count 当前有效条目数
func (s *HashCacheService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// scheduleFlushLocked 去抖安排一次落盘，调用方必须持有锁
func (s *HashCacheService) scheduleFlushLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	s.flushTimer = time.AfterFunc(hashCacheFlushDelay, func() {
		if err := s.Flush(); err != nil {
			s.log.Errorf("哈希缓存落盘失败: %v", err)
		}
	})
}

// Flush 将内存视图同步到影子表
func (s *HashCacheService) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make([]model.HashCacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, model.HashCacheEntry{
			Digest:     e.Digest,
			Filename:   e.Filename,
			Path:       e.Path,
			UploadedAt: e.UploadedAt,
		})
	}
	s.dirty = false
	s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.HashCacheEntry{}).Error; err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(snapshot, 100).Error
	})
}

// Close 停止去抖定时器并执行最后一次落盘
func (s *HashCacheService) Close() error {
	s.mu.Lock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.mu.Unlock()
	return s.Flush()
}
