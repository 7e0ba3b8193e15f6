package dto

import (
	"encoding/json"
	"errors"

	"gallery-go/internal/models"
)

// UpdatePhotoRequest 更新图片信息，未提供的字段保持不变
type UpdatePhotoRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// AddTagsRequest 添加标签，支持 ["a","b"] 和 {"tags":["a","b"]} 两种格式
type AddTagsRequest struct {
	Tags []string
}

// UnmarshalJSON 兼容两种请求格式
func (r *AddTagsRequest) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		r.Tags = list
		return nil
	}
	var obj struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("标签必须是数组格式")
	}
	r.Tags = obj.Tags
	return nil
}

// AddTagsResponse 添加标签响应
type AddTagsResponse struct {
	AddedTags []models.Tag  `json:"added_tags"`
	Photo     *models.Photo `json:"photo"`
}

// ImportImageRequest 从URL导入一张生成的图片
type ImportImageRequest struct {
	ImageURL    string `json:"image_url" validate:"required,url"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description"`
}

// SaveResultRequest 将生成结果保存到图库
type SaveResultRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description"`
}

// UploadResponse 批量上传结果
type UploadResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Photos  []models.Photo `json:"photos"`
	Errors  []string       `json:"errors"`
}
