package utils

import (
	"tpadmin/pkg/common"

	"github.com/gofiber/fiber/v2"
)

// 定义常用的状态码
const (
	// 成功状态码，与前端约定为20000
	StatusSuccess = 20000
	// 参数错误状态码
	StatusBadRequest = 40000
	// 资源不存在状态码
	StatusNotFound = 40400
	// 服务器内部错误状态码
	StatusInternalError = 50000
	// 服务不可用状态码
	StatusServiceUnavailable = 50300
)

// Response 统一返回结构体
type Response struct {
	// 状态码，与前端约定为20000表示成功
	Code int `json:"code"`
	// 消息内容
	Msg string `json:"msg"`
	// 数据内容
	Data interface{} `json:"data,omitempty"`
}

// NewResponse 创建新的响应
func NewResponse(code int, msg string, data interface{}) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
		Data: data,
	}
}

// Success 返回成功响应
func Success(data interface{}) *Response {
	return NewResponse(StatusSuccess, "success", data)
}

// Fail 返回失败响应
func Fail(code int, msg string) *Response {
	return NewResponse(code, msg, nil)
}

// WithResponse 封装响应的辅助函数
func WithResponse(c *fiber.Ctx, resp *Response) error {
	return c.Status(fiber.StatusOK).JSON(resp)
}

// SuccessResponse 返回成功响应的辅助函数
func SuccessResponse(c *fiber.Ctx, data interface{}) error {
	return WithResponse(c, Success(data))
}

// FailResponse 返回失败响应的辅助函数
func FailResponse(c *fiber.Ctx, code int, msg string) error {
	return WithResponse(c, Fail(code, msg))
}

// ErrorResponse 由错误生成失败响应，按错误分类映射状态码，不向外暴露内部堆栈
func ErrorResponse(c *fiber.Ctx, err error) error {
	appErr := common.ToAppError(err)

	code := StatusInternalError
	switch appErr.Type {
	case common.ErrorTypeValidation:
		code = StatusBadRequest
	case common.ErrorTypeNotFound:
		code = StatusNotFound
	case common.ErrorTypeUnavailable, common.ErrorTypeTimeout:
		code = StatusServiceUnavailable
	}

	return WithResponse(c, Fail(code, appErr.Message))
}
