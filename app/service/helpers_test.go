package service

import (
	"os"
	"path/filepath"
	"testing"

	"pic-fusion/app/config"
	"pic-fusion/app/logger"
	"pic-fusion/app/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Repo: config.RepoConfig{
			Owner:              "acme",
			Repo:               "wallpapers",
			Branch:             "main",
			MetadataPendingDir: "metadata-pending",
		},
		Upload: config.UploadConfig{
			TempDir:            t.TempDir(),
			AllowedExtensions:  []string{"jpg", "jpeg", "png", "webp"},
			MaxFileSizeMB:      25,
			CompressOverMB:     5,
			UploadDelayMs:      1,
			BatchWarnThreshold: 50,
			HashCacheCapacity:  500,
			HashCacheTTLDays:   30,
			HistoryKeepDays:    90,
		},
		AI: config.AIConfig{
			Enabled:         true,
			DefaultProvider: "doubao",
			Concurrency:     3,
		},
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.HashCacheEntry{}, &model.UploadHistory{}))
	return db
}

// writeTempFile 创建带内容的临时文件并返回路径
func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// addPendingFile 直接向批次注入一条已设好目标的待上传记录
func addPendingFile(t *testing.T, batch *BatchService, name string, content []byte) *model.UploadFile {
	t.Helper()
	file, err := batch.AddFile(name, writeTempFile(t, name, content), int64(len(content)))
	require.NoError(t, err)
	require.True(t, batch.UpdateTarget(file.ID, "desktop", "风景", ""))
	return file
}
