package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var imageSizePattern = regexp.MustCompile(`^([124][kK]|[1-9][0-9]{1,4}[xX][1-9][0-9]{1,4})$`)

// InitValidator 初始化验证器
func InitValidator() {
	validateOnce.Do(func() {
		validate = validator.New()

		// 错误信息里使用JSON字段名
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		// 注册自定义验证函数
		validate.RegisterValidation("image_size", validateImageSize)
	})
}

// GetValidator 获取验证器实例
func GetValidator() *validator.Validate {
	InitValidator()
	return validate
}

// validateImageSize 验证图片尺寸：1K/2K/4K 或 宽x高
func validateImageSize(fl validator.FieldLevel) bool {
	return imageSizePattern.MatchString(fl.Field().String())
}

// ValidateStruct 验证结构体
func ValidateStruct(s interface{}) error {
	v := GetValidator()
	if err := v.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// FieldError 单个字段的校验失败
type FieldError struct {
	Field  string
	Reason string
}

// ValidationErrors 结构体校验失败的字段列表
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Reason)
	}
	return strings.Join(msgs, "; ")
}

// formatValidationError 格式化验证错误
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		param := e.Param()

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s是必填字段", field)
		case "required_without":
			message = fmt.Sprintf("%s和%s必须提供一个", field, toSnake(param))
		case "excluded_with":
			message = fmt.Sprintf("%s和%s不能同时提供", field, toSnake(param))
		case "min", "gte":
			message = fmt.Sprintf("%s不能小于%s", field, param)
		case "max", "lte":
			message = fmt.Sprintf("%s不能大于%s", field, param)
		case "image_size":
			message = fmt.Sprintf("%s必须是1K/2K/4K或宽x高格式", field)
		default:
			message = fmt.Sprintf("%s验证失败: %s", field, e.Tag())
		}
		result = append(result, FieldError{Field: field, Reason: message})
	}
	return result
}

// toSnake ImageBase64 -> image_base64
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
