package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/services"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// statusOf 把服务层错误映射为 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvariant):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"message": msg,
	})
}

// serviceError 写出错误响应；500 不暴露内部细节
func serviceError(c *gin.Context, log *logger.Logger, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), op+" failed", zap.Error(err))
		fail(c, status, "internal server error")
		return
	}
	log.DebugContext(c.Request.Context(), op+" rejected", zap.Int("status", status), zap.Error(err))
	fail(c, status, err.Error())
}

// currentUser 认证中间件写入的用户 ID
func currentUser(c *gin.Context) (int64, bool) {
	uid := c.GetInt64("user_id")
	if uid == 0 {
		fail(c, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return uid, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func bindPage(c *gin.Context) (services.Pagination, bool) {
	var page services.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return page, false
	}
	return page, true
}

func namedLogger(log *logger.Logger, name string) *logger.Logger {
	if log == nil {
		log = logger.Nop()
	}
	return log.Named(name)
}
