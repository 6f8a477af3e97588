package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一响应结构
type ApiResponse struct {
	Code    int    `json:"code"`    // 状态码，0表示成功
	Message string `json:"message"` // 响应消息
	Data    any    `json:"data"`    // 响应数据
}

// ResponseHelper 响应辅助结构体，各处理器嵌入使用
type ResponseHelper struct{}

// Success 创建成功响应
func (r *ResponseHelper) Success(data any, message string) ApiResponse {
	return ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	}
}

// Error 创建错误响应
func (r *ResponseHelper) Error(errorCode int, message string) ApiResponse {
	return ApiResponse{
		Code:    errorCode,
		Message: message,
		Data:    nil,
	}
}

func (r *ResponseHelper) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, r.Success(data, message))
}

func (r *ResponseHelper) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, r.Error(errorCode, message))
}
