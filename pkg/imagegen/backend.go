package imagegen

import (
	"context"
	"encoding/json"
)

// SourceImage 输入图片，URL 与 Base64 只能二选一
type SourceImage struct {
	URL    string
	Base64 string
}

// IsInline 是否为内联图片数据
func (s SourceImage) IsInline() bool {
	return s.URL == "" && s.Base64 != ""
}

// GenerateRequest 单次生成请求（只请求一张图片）
type GenerateRequest struct {
	Source         SourceImage
	Prompt         string
	NegativePrompt string
	Model          string
	Size           string
	Steps          int
	Strength       *float64 // nil 时由后端决定默认值
	Watermark      bool
	Stream         bool
}

// GenerateResult 单次生成结果
type GenerateResult struct {
	ImageURLs []string
	Raw       json.RawMessage // 最近一次的原始响应
}

// Backend 图生图后端，两种协议实现同一契约
type Backend interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

// InlineImageSupporter 可选接口：后端是否接受 base64 内联图片
type InlineImageSupporter interface {
	AcceptsInlineImage() bool
}

// AcceptsInlineImage 判断后端能否处理内联图片，未实现接口的后端视为支持
func AcceptsInlineImage(b Backend) bool {
	if s, ok := b.(InlineImageSupporter); ok {
		return s.AcceptsInlineImage()
	}
	return true
}

// PromptLengthLimiter 可选接口：后端对提示词长度（按字符计）的上限
type PromptLengthLimiter interface {
	MaxPromptLength() int
}

// MaxPromptLength 后端的提示词长度上限，0 表示不限制
func MaxPromptLength(b Backend) int {
	if l, ok := b.(PromptLengthLimiter); ok {
		return l.MaxPromptLength()
	}
	return 0
}
