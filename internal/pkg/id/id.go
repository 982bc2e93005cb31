package id

import (
	"strings"

	"github.com/google/uuid"
)

// New 生成新的UUID（string格式）
func New() string {
	return uuid.New().String()
}

// NewShort 生成短ID（UUID前8位，用于产物文件名）
func NewShort() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

// IsValid 验证UUID格式是否有效
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
