package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gallery-go/internal/config"
	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/utils"
	"gallery-go/pkg/imagegen"
)

// 生成参数默认值
const (
	DefaultSize             = "2K"
	DefaultNumImages        = 1
	DefaultSteps            = 30
	DefaultCreativeStrength = 0.7
)

// ValidationError 请求校验失败，对应400响应
type ValidationError struct {
	Field   string
	Reason  string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("%s (可选值: %s)", e.Reason, strings.Join(e.Allowed, ", "))
	}
	return e.Reason
}

// IsValidationError 判断是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GenerationParams 校验并补全默认值后的生成参数
type GenerationParams struct {
	Source           imagegen.SourceImage
	Prompt           string
	NegativePrompt   string
	Model            string
	Size             string
	NumImages        int
	Steps            int
	CreativeStrength float64
	Watermark        bool
	Stream           bool
}

// AttemptRequest 单次尝试的请求，每次只请求一张图片
func (p *GenerationParams) AttemptRequest() *imagegen.GenerateRequest {
	strength := p.CreativeStrength
	return &imagegen.GenerateRequest{
		Source:         p.Source,
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Model:          p.Model,
		Size:           p.Size,
		Steps:          p.Steps,
		Strength:       &strength,
		Watermark:      p.Watermark,
		Stream:         p.Stream,
	}
}

// Snapshot 参数快照行
func (p *GenerationParams) Snapshot() []models.GenerationParameter {
	source := "url"
	if p.Source.IsInline() {
		source = "base64"
	}
	values := []struct{ name, value string }{
		{models.ParamPrompt, p.Prompt},
		{models.ParamNegativePrompt, p.NegativePrompt},
		{models.ParamModel, p.Model},
		{models.ParamSize, p.Size},
		{models.ParamSteps, strconv.Itoa(p.Steps)},
		{models.ParamCreativeStrength, strconv.FormatFloat(p.CreativeStrength, 'f', -1, 64)},
		{models.ParamWatermark, strconv.FormatBool(p.Watermark)},
		{models.ParamNumImages, strconv.Itoa(p.NumImages)},
		{models.ParamImageSource, source},
	}
	params := make([]models.GenerationParameter, 0, len(values))
	for _, v := range values {
		params = append(params, models.GenerationParameter{ParameterName: v.name, ParameterValue: v.value})
	}
	return params
}

// GenerationValidator 生成请求校验，不做任何网络和数据库操作
type GenerationValidator struct {
	defaultModel  string
	allowedModels []string
	defaultSize   string
	maxImages     int
	acceptsInline bool
	maxPromptLen  int
}

// NewGenerationValidator 创建校验器，按后端能力限制内联图片和提示词长度
func NewGenerationValidator(cfg *config.GenerationConfig, backend imagegen.Backend) *GenerationValidator {
	v := &GenerationValidator{
		defaultModel:  cfg.DefaultModel,
		allowedModels: cfg.AllowedModels,
		defaultSize:   cfg.DefaultSize,
		maxImages:     cfg.MaxImagesPerTask,
		acceptsInline: imagegen.AcceptsInlineImage(backend),
		maxPromptLen:  imagegen.MaxPromptLength(backend),
	}
	if v.defaultModel == "" {
		v.defaultModel = config.DefaultModel
	}
	if len(v.allowedModels) == 0 {
		v.allowedModels = []string{v.defaultModel}
	}
	if v.defaultSize == "" {
		v.defaultSize = DefaultSize
	}
	return v
}

// Validate 校验请求并填充默认值
func (v *GenerationValidator) Validate(req *dto.ImageToImageRequest) (*GenerationParams, error) {
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.ImageBase64 = strings.TrimSpace(req.ImageBase64)
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Model = strings.TrimSpace(req.Model)

	if err := utils.ValidateStruct(req); err != nil {
		var fieldErrs utils.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, &ValidationError{Field: fieldErrs[0].Field, Reason: fieldErrs.Error()}
		}
		return nil, &ValidationError{Reason: err.Error()}
	}

	params := &GenerationParams{
		Source:           imagegen.SourceImage{URL: req.ImageURL, Base64: req.ImageBase64},
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		Model:            req.Model,
		Size:             req.Size,
		NumImages:        DefaultNumImages,
		Steps:            DefaultSteps,
		CreativeStrength: DefaultCreativeStrength,
	}
	if params.Model == "" {
		params.Model = v.defaultModel
	}
	if params.Size == "" {
		params.Size = v.defaultSize
	}
	if req.NumImages != nil {
		params.NumImages = *req.NumImages
	}
	if req.Steps != nil {
		params.Steps = *req.Steps
	}
	if req.CreativeStrength != nil {
		params.CreativeStrength = *req.CreativeStrength
	}
	if req.Watermark != nil {
		params.Watermark = *req.Watermark
	}
	if req.Stream != nil {
		params.Stream = *req.Stream
	}

	if !contains(v.allowedModels, params.Model) {
		return nil, &ValidationError{
			Field:   "model",
			Reason:  fmt.Sprintf("不支持的模型: %s", params.Model),
			Allowed: v.allowedModels,
		}
	}
	if v.maxImages > 0 && params.NumImages > v.maxImages {
		return nil, &ValidationError{
			Field:  "num_images",
			Reason: fmt.Sprintf("num_images不能大于%d", v.maxImages),
		}
	}
	if params.Source.IsInline() && !v.acceptsInline {
		return nil, &ValidationError{
			Field:  "image_base64",
			Reason: "当前生成后端只支持image_url",
		}
	}
	if v.maxPromptLen > 0 && utf8.RuneCountInString(params.Prompt) > v.maxPromptLen {
		return nil, &ValidationError{
			Field:  "prompt",
			Reason: fmt.Sprintf("prompt长度不能超过%d字符", v.maxPromptLen),
		}
	}
	return params, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
