package database

import (
	"pic-fusion/app/model"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.HashCacheEntry{},
		&model.UploadHistory{},
	)
}
