package services

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// 错误分类，handler 通过 errors.Is 映射为 HTTP 状态码
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInvariant  = errors.New("invariant violation")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func permissionErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

func notFoundErr(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// storeErr 把仓储层的 ErrNotFound 转换为服务层错误
func storeErr(err error, what string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return notFoundErr(what)
	}
	return err
}
