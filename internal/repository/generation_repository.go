package repository

import (
	"errors"
	"fmt"
	"time"

	"gallery-go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTaskTerminal 任务已是终态，不能再修改
var ErrTaskTerminal = errors.New("任务已结束")

var terminalStatuses = []string{string(models.TaskStatusCompleted), string(models.TaskStatusFailed)}

// GenerationRepository 生成任务、参数快照、生成结果的数据访问层
type GenerationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository 创建生成任务Repository
func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// CreateTask 在同一事务中创建任务（processing 状态）及其参数快照
func (r *GenerationRepository) CreateTask(task *models.ImageGenerationTask, params []models.GenerationParameter) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if !task.Status.CanTransitionTo(models.TaskStatusProcessing) {
		return fmt.Errorf("任务状态 %s 不能开始处理", task.Status)
	}
	task.Status = models.TaskStatusProcessing

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Parameters", "Results", "InputImage").Create(task).Error; err != nil {
			return fmt.Errorf("创建任务失败: %w", err)
		}
		if len(params) == 0 {
			return nil
		}
		for i := range params {
			params[i].TaskID = task.ID
		}
		if err := tx.Create(&params).Error; err != nil {
			return fmt.Errorf("保存生成参数失败: %w", err)
		}
		task.Parameters = params
		return nil
	})
}

// RecordAttempt 提交一次尝试：更新最近原始响应，成功时写入结果行。立即提交
func (r *GenerationRepository) RecordAttempt(taskPK uint, raw datatypes.JSON, result *models.GenerationResult) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ImageGenerationTask{}).
			Where("id = ? AND status NOT IN ?", taskPK, terminalStatuses).
			Update("api_response", raw)
		if res.Error != nil {
			return fmt.Errorf("更新原始响应失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskTerminal
		}

		if result == nil {
			return nil
		}
		result.TaskID = taskPK
		if err := tx.Omit("GeneratedImage").Create(result).Error; err != nil {
			return fmt.Errorf("保存生成结果失败: %w", err)
		}
		return nil
	})
}

// Finalize 将任务置为终态。已是终态的任务不会被改写
func (r *GenerationRepository) Finalize(taskPK uint, status models.TaskStatus, errorMessage string, completedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("无效的终态: %s", status)
	}

	res := r.db.Model(&models.ImageGenerationTask{}).
		Where("id = ? AND status NOT IN ?", taskPK, terminalStatuses).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"completed_at":  completedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("更新任务状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskTerminal
	}
	return nil
}

// GetTaskByTaskID 根据外部任务ID获取任务，包含参数和结果
func (r *GenerationRepository) GetTaskByTaskID(taskID string) (*models.ImageGenerationTask, error) {
	var task models.ImageGenerationTask
	err := r.db.Preload("Parameters", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Preload("Results", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("task_id = ?", taskID).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetResult 根据ID获取生成结果
func (r *GenerationRepository) GetResult(id uint) (*models.GenerationResult, error) {
	var result models.GenerationResult
	if err := r.db.Preload("GeneratedImage").First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRecentResults 最近的生成结果
func (r *GenerationRepository) ListRecentResults(limit int) ([]models.GenerationResult, error) {
	var results []models.GenerationResult
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&results).Error
	return results, err
}

// LinkResultPhoto 关联生成结果与入库的图片
func (r *GenerationRepository) LinkResultPhoto(resultID, photoID uint, contentType string, fileSize int64) error {
	return r.db.Model(&models.GenerationResult{}).Where("id = ?", resultID).Updates(map[string]interface{}{
		"generated_image_id": photoID,
		"content_type":       contentType,
		"file_size":          fileSize,
	}).Error
}

// DeleteResult 删除生成结果及其关联图片。
// 先断开结果对图片的引用，再清理标签关联、删除图片，最后删除结果，全部在一个事务内。
// 返回被删除的图片，调用方在提交后清理对象存储
func (r *GenerationRepository) DeleteResult(resultID uint) (*models.Photo, error) {
	var deleted *models.Photo

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var result models.GenerationResult
		if err := tx.First(&result, resultID).Error; err != nil {
			return err
		}

		if result.GeneratedImageID != nil {
			photoID := *result.GeneratedImageID
			if err := tx.Model(&models.GenerationResult{}).Where("id = ?", result.ID).
				Update("generated_image_id", nil).Error; err != nil {
				return fmt.Errorf("断开图片关联失败: %w", err)
			}

			var photo models.Photo
			err := tx.First(&photo, photoID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// 图片已不存在，只删除结果
			case err != nil:
				return err
			default:
				if err := deletePhotoTx(tx, &photo); err != nil {
					return err
				}
				deleted = &photo
			}
		}

		if err := tx.Delete(&models.GenerationResult{}, result.ID).Error; err != nil {
			return fmt.Errorf("删除生成结果失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
