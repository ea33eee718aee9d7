package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/room-server/internal/errors"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string `json:"message"`
}

// respondError 把业务错误映射为HTTP响应
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Code:    int(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    int(errors.ErrUnknown),
		Message: "内部错误",
		Details: err.Error(),
	})
}

// respondBadRequest 参数绑定失败的响应
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    int(errors.ErrInvalidParam),
		Message: "请求参数错误",
		Details: err.Error(),
	})
}
