package models

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 打开SQLite数据库并开启外键约束
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 使用静默模式
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

// InitDB 打开数据库并迁移表结构
func InitDB(path string) (*gorm.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Photo{},
		&Tag{},
		&ImageGenerationTask{},
		&GenerationParameter{},
		&GenerationResult{},
	); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}
	return nil
}
