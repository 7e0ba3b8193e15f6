package dto

import "time"

// ImageToImageRequest 图生图请求，image_url 与 image_base64 二选一
type ImageToImageRequest struct {
	ImageURL         string   `json:"image_url" validate:"required_without=ImageBase64,excluded_with=ImageBase64"`
	ImageBase64      string   `json:"image_base64" validate:"required_without=ImageURL,excluded_with=ImageURL"`
	Prompt           string   `json:"prompt" validate:"required"`
	NegativePrompt   string   `json:"negative_prompt"`
	Model            string   `json:"model"`
	Size             string   `json:"size" validate:"omitempty,image_size"`
	NumImages        *int     `json:"num_images" validate:"omitempty,min=1"`
	Steps            *int     `json:"steps" validate:"omitempty,min=1,max=100"`
	CreativeStrength *float64 `json:"creative_strength" validate:"omitempty,gte=0,lte=1"`
	Watermark        *bool    `json:"watermark"`
	Stream           *bool    `json:"stream"`
}

// GeneratedImage 一张生成的图片，image_id 为生成结果ID
type GeneratedImage struct {
	ImageURL string `json:"image_url"`
	ImageID  uint   `json:"image_id"`
}

// ImageToImageResponse 图生图响应，生成失败也通过 success 字段返回
type ImageToImageResponse struct {
	Success bool             `json:"success"`
	TaskID  string           `json:"task_id"`
	Results []GeneratedImage `json:"results"`
	Message string           `json:"message"`
	Error   string           `json:"error,omitempty"`
}

// TaskDetailResponse 任务详情
type TaskDetailResponse struct {
	TaskID        string            `json:"task_id"`
	Status        string            `json:"status"`
	Prompt        string            `json:"prompt"`
	Model         string            `json:"model"`
	Size          string            `json:"size"`
	Watermark     bool              `json:"watermark"`
	InputImageURL *string           `json:"input_image_url"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	Parameters    map[string]string `json:"parameters"`
	Results       []GeneratedImage  `json:"results"`
}

// TaskProgressResponse 任务进度
type TaskProgressResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Source    string `json:"source"` // redis | database
}

// GenerationResultResponse 生成结果列表项
type GenerationResultResponse struct {
	ID               uint      `json:"id"`
	ImageURL         string    `json:"image_url"`
	Model            string    `json:"model"`
	GeneratedImageID *uint     `json:"generated_image_id"`
	CreatedAt        time.Time `json:"created_at"`
}
