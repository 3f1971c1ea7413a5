package common

import (
	"errors"
	"fmt"
)

// ErrorType 错误类型
type ErrorType uint

const (
	// ErrorTypeNormal 普通错误
	ErrorTypeNormal ErrorType = iota
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation
	// ErrorTypeNotFound 未找到错误
	ErrorTypeNotFound
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout
	// ErrorTypeUnavailable 上游不可用错误
	ErrorTypeUnavailable
)

// AppError 应用错误
type AppError struct {
	// Type 错误类型
	Type ErrorType
	// Code 错误代码
	Code string
	// Message 错误消息
	Message string
	// Err 原始错误
	Err error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现errors.Unwrap接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建应用错误
func NewAppError(errType ErrorType, code string, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ToAppError 将普通错误转换为AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewAppError(ErrorTypeNormal, "UNKNOWN", err.Error(), err)
}

// IsNotFound 检查错误是否为未找到错误
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeNotFound
	}
	return false
}

// NewValidationError 创建验证错误
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_ERROR", message, err)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrorTypeNotFound, "NOT_FOUND", message, err)
}

// NewInternalError 创建内部错误
func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, err)
}

// NewUnavailableError 创建上游不可用错误
func NewUnavailableError(message string, err error) *AppError {
	return NewAppError(ErrorTypeUnavailable, "UPSTREAM_UNAVAILABLE", message, err)
}
