package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sourcechat/backend/internal/domain/index"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    "ok",
		Message: "success",
		Data:    data,
	})
}

// BadRequest 请求参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "BadRequest",
		Message: message,
	})
}

// DomainError 领域错误响应
// 按错误码映射 HTTP 状态码
func DomainError(c *gin.Context, err error) {
	code := index.CodeOf(err)
	c.JSON(statusForCode(code), ErrorResponse{
		Code:    string(code),
		Message: err.Error(),
	})
}

// statusForCode 错误码到 HTTP 状态码的映射
func statusForCode(code index.ErrorCode) int {
	switch code {
	case index.ErrDirectoryNotFound, index.ErrCollectionNotFound, index.ErrNoSearchResults:
		return http.StatusNotFound
	case index.ErrDimensionMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
