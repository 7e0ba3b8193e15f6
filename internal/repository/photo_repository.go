package repository

import (
	"errors"
	"fmt"
	"strings"

	"gallery-go/internal/models"

	"gorm.io/gorm"
)

// ErrTagNotOnPhoto 标签不在该图片上
var ErrTagNotOnPhoto = errors.New("标签不存在于该图片上")

// PhotoRepository 图片数据访问层
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository 创建图片Repository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create 创建图片
func (r *PhotoRepository) Create(photo *models.Photo) error {
	return r.db.Omit("Tags").Create(photo).Error
}

// GetByID 根据ID获取图片（含标签）
func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	if err := r.db.Preload("Tags").First(&photo, id).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// ExistsByHash 是否已存在相同内容的图片
func (r *PhotoRepository) ExistsByHash(hash string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Photo{}).Where("hash_value = ?", hash).Count(&count).Error
	return count > 0, err
}

// PhotoFilter 公开图片筛选条件，零值表示不筛选
type PhotoFilter struct {
	TagID  uint
	Search string // 标题或描述包含
}

// ListPublic 公开图片列表，按创建时间倒序
func (r *PhotoRepository) ListPublic(filter PhotoFilter, limit int) ([]models.Photo, error) {
	var photos []models.Photo
	query := r.db.Model(&models.Photo{}).Preload("Tags").Where("photos.is_public = ?", true)
	if filter.TagID != 0 {
		query = query.Joins("JOIN photo_tags ON photo_tags.photo_id = photos.id").
			Where("photo_tags.tag_id = ?", filter.TagID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("photos.title LIKE ? OR photos.description LIKE ?", like, like)
	}
	err := query.Order("photos.created_at DESC, photos.id DESC").Limit(limit).Find(&photos).Error
	return photos, err
}

// IncrementViewCount 浏览次数加一
func (r *PhotoRepository) IncrementViewCount(id uint) error {
	return r.db.Model(&models.Photo{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}

// UpdateFields 更新指定字段
func (r *PhotoRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Photo{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除图片及其标签关联，生成结果对它的引用置空
func (r *PhotoRepository) Delete(photo *models.Photo) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.GenerationResult{}).Where("generated_image_id = ?", photo.ID).
			Update("generated_image_id", nil).Error; err != nil {
			return fmt.Errorf("断开生成结果关联失败: %w", err)
		}
		return deletePhotoTx(tx, photo)
	})
}

// AddTags 按名称为图片添加标签，不存在的标签会被创建。返回新加上的标签
func (r *PhotoRepository) AddTags(photoID uint, names []string, colorFn func() string) ([]models.Tag, error) {
	var added []models.Tag

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var photo models.Photo
		if err := tx.Preload("Tags").First(&photo, photoID).Error; err != nil {
			return err
		}
		existing := make(map[string]bool, len(photo.Tags))
		for _, t := range photo.Tags {
			existing[t.Name] = true
		}

		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || existing[name] {
				continue
			}

			tag := models.Tag{Name: name, Color: colorFn()}
			if err := tx.Where(models.Tag{Name: name}).Attrs(models.Tag{Color: tag.Color}).
				FirstOrCreate(&tag).Error; err != nil {
				return fmt.Errorf("创建标签失败: %w", err)
			}
			if err := tx.Exec("INSERT INTO photo_tags (photo_id, tag_id) VALUES (?, ?)", photoID, tag.ID).Error; err != nil {
				return fmt.Errorf("关联标签失败: %w", err)
			}
			if err := tx.Model(&tag).UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
				return err
			}
			tag.UsageCount++
			existing[name] = true
			added = append(added, tag)
		}
		return nil
	})
	return added, err
}

// RemoveTag 从图片移除标签，标签不在图片上时返回 ErrTagNotOnPhoto
func (r *PhotoRepository) RemoveTag(photoID, tagID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM photo_tags WHERE photo_id = ? AND tag_id = ?", photoID, tagID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTagNotOnPhoto
		}
		return tx.Model(&models.Tag{}).Where("id = ? AND usage_count > 0", tagID).
			UpdateColumn("usage_count", gorm.Expr("usage_count - 1")).Error
	})
}

// deletePhotoTx 清理标签关联（同步减少标签使用次数）后删除图片
func deletePhotoTx(tx *gorm.DB, photo *models.Photo) error {
	var tagIDs []uint
	if err := tx.Table("photo_tags").Where("photo_id = ?", photo.ID).Pluck("tag_id", &tagIDs).Error; err != nil {
		return err
	}
	if len(tagIDs) > 0 {
		if err := tx.Exec("DELETE FROM photo_tags WHERE photo_id = ?", photo.ID).Error; err != nil {
			return fmt.Errorf("清理标签关联失败: %w", err)
		}
		if err := tx.Model(&models.Tag{}).Where("id IN ? AND usage_count > 0", tagIDs).
			UpdateColumn("usage_count", gorm.Expr("usage_count - 1")).Error; err != nil {
			return err
		}
	}
	if err := tx.Delete(&models.Photo{}, photo.ID).Error; err != nil {
		return fmt.Errorf("删除图片失败: %w", err)
	}
	return nil
}
