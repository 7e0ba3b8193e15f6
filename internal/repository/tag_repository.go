package repository

import (
	"gallery-go/internal/models"

	"gorm.io/gorm"
)

// TagRepository 标签数据访问层
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository 创建标签Repository
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// GetByID 根据ID获取标签
func (r *TagRepository) GetByID(id uint) (*models.Tag, error) {
	var tag models.Tag
	if err := r.db.First(&tag, id).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// ListPopular 按使用次数倒序
func (r *TagRepository) ListPopular(limit int) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.Order("usage_count DESC, id ASC").Limit(limit).Find(&tags).Error
	return tags, err
}
