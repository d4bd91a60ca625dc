package domain

import (
	"errors"
	"fmt"
)

// 错误分类：handler 层据此映射 HTTP 状态码，matching 层据此决定本地恢复还是上抛
var (
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTimeout      = errors.New("timeout")
	ErrTransport    = errors.New("transport failure")
)

// WrapErr 统一包装：WrapErr("care record", ErrNotFound)
func WrapErr(subject string, err error) error {
	return fmt.Errorf("%s: %w", subject, err)
}
