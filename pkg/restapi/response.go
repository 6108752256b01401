package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dubbing-service/pkg/errno"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{Code: errno.OK.Code, Message: errno.OK.Message, Data: data})
}

// Failed 返回失败响应，HTTP 状态码由错误码推导
func Failed(ctx *gin.Context, err error) {
	code, msg := errno.Decode(err)
	ctx.JSON(httpStatus(code), Response{Code: code, Message: msg})
}

func httpStatus(code int) int {
	switch {
	case code == errno.ErrJobNotFound.Code || code == errno.ErrMediaNotFound.Code:
		return http.StatusNotFound
	case code == errno.ErrQueueFull.Code:
		return http.StatusServiceUnavailable
	case code >= 400 && code < 500:
		return code
	case code >= 20000:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Accepted 返回 202，用于异步处理的请求
func Accepted(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusAccepted, Response{Code: errno.OK.Code, Message: errno.OK.Message, Data: data})
}
