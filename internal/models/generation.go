package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus 生成任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo 状态只能前进：pending -> processing -> completed|failed
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// 参数名
const (
	ParamPrompt           = "prompt"
	ParamNegativePrompt   = "negative_prompt"
	ParamModel            = "model"
	ParamSize             = "size"
	ParamSteps            = "steps"
	ParamCreativeStrength = "creative_strength"
	ParamWatermark        = "watermark"
	ParamNumImages        = "num_images"
	ParamImageSource      = "image_source"
)

// ImageGenerationTask 图生图任务
type ImageGenerationTask struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	TaskID        string         `gorm:"uniqueIndex;size:100;not null" json:"task_id"`
	InputImageURL *string        `gorm:"size:1000" json:"input_image_url"`
	InputImageID  *uint          `json:"input_image_id"`
	Prompt        string         `gorm:"type:text;not null" json:"prompt"`
	Model         string         `gorm:"size:100" json:"model"`
	Size          string         `gorm:"size:50" json:"size"`
	Watermark     bool           `gorm:"default:false" json:"watermark"`
	Status        TaskStatus     `gorm:"size:20;default:'pending';index" json:"status"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message,omitempty"`
	APIResponse   datatypes.JSON `json:"-"` // 最近一次原始响应或错误

	// 关联
	InputImage *Photo                `gorm:"foreignKey:InputImageID;constraint:OnDelete:SET NULL" json:"-"`
	Parameters []GenerationParameter `gorm:"foreignKey:TaskID" json:"parameters,omitempty"`
	Results    []GenerationResult    `gorm:"foreignKey:TaskID" json:"results,omitempty"`
}

// TableName 指定表名
func (ImageGenerationTask) TableName() string {
	return "image_generation_tasks"
}

// GenerationParameter 任务创建时的参数快照，只写一次
type GenerationParameter struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	TaskID         uint      `gorm:"not null;uniqueIndex:idx_task_parameter" json:"task_id"`
	ParameterName  string    `gorm:"size:100;not null;uniqueIndex:idx_task_parameter" json:"parameter_name"`
	ParameterValue string    `gorm:"type:text" json:"parameter_value"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (GenerationParameter) TableName() string {
	return "generation_parameters"
}

// GenerationResult 一次成功的生成
type GenerationResult struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	TaskID            uint      `gorm:"not null;index" json:"task_id"`
	GeneratedImageID  *uint     `gorm:"index" json:"generated_image_id"`
	GeneratedImageURL string    `gorm:"size:1000;not null" json:"generated_image_url"`
	Model             string    `gorm:"size:100" json:"model"`
	ContentType       string    `gorm:"size:50" json:"content_type,omitempty"`
	FileSize          int64     `json:"file_size,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// 关联
	GeneratedImage *Photo `gorm:"foreignKey:GeneratedImageID" json:"-"`
}

// TableName 指定表名
func (GenerationResult) TableName() string {
	return "generation_results"
}
