package models

import (
	"time"
)

// Photo 图片模型
type Photo struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	Title            string    `gorm:"size:200;not null;index" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex" json:"filename"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	TosURL           string    `gorm:"size:500;not null" json:"tos_url"`
	ThumbnailURL     string    `gorm:"size:500" json:"thumbnail_url"`
	FileSize         int64     `json:"file_size"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	MimeType         string    `gorm:"size:50" json:"mime_type"`
	HashValue        string    `gorm:"size:64;uniqueIndex" json:"-"` // 防重复上传
	IsPublic         bool      `gorm:"default:true;index" json:"is_public"`
	IsAIGenerated    bool      `gorm:"default:false" json:"is_ai_generated"`
	ViewCount        int       `gorm:"default:0" json:"view_count"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// 关联
	Tags []Tag `gorm:"many2many:photo_tags;" json:"tags"`
}

// TableName 指定表名
func (Photo) TableName() string {
	return "photos"
}

// Tag 标签模型
type Tag struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Name       string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Color      string    `gorm:"size:7;default:'#007bff'" json:"color"`
	UsageCount int       `gorm:"default:0;index" json:"usage_count"`
	CreatedAt  time.Time `json:"-"`
}

// TableName 指定表名
func (Tag) TableName() string {
	return "tags"
}
