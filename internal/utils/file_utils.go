package utils

import (
	"crypto/md5"
	"encoding/hex"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// 标签颜色
var tagColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
	"#F8C471", "#82E0AA", "#D7BDE2", "#F1948A",
}

// RandomTagColor 随机选择一个标签颜色
func RandomTagColor() string {
	return tagColors[rand.Intn(len(tagColors))]
}

// FileExtension 小写扩展名，不含点
func FileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// GenerateFilename 生成唯一文件名：uuid + 原扩展名，没有扩展名时使用jpg
func GenerateFilename(originalFilename string) string {
	ext := FileExtension(originalFilename)
	if ext == "" {
		ext = "jpg"
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
}

// CalculateFileHash 计算文件MD5，用于去重
func CalculateFileHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// IsAllowedFile 检查扩展名是否在允许列表中
func IsAllowedFile(filename string, allowed []string) bool {
	ext := FileExtension(filename)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// TitleFromFilename 去掉扩展名和路径作为默认标题
func TitleFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DetectContentType 检测图片内容类型
func DetectContentType(data []byte) string {
	contentType := http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return contentType
}
