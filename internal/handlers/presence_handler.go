package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/services"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// PresenceHandler 在线状态
type PresenceHandler struct {
	presenceService *services.PresenceService
	logger          *logger.Logger
}

func NewPresenceHandler(presenceService *services.PresenceService, log *logger.Logger) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService, logger: namedLogger(log, "presence_handler")}
}

type setStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	CustomStatus string `json:"custom_status"`
}

type onlineQuery struct {
	WindowMinutes  int   `form:"window_minutes"`
	ExcludeOffline *bool `form:"exclude_offline"`
}

// SetStatus PUT /online-status
func (h *PresenceHandler) SetStatus(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	status, err := h.presenceService.SetStatus(c.Request.Context(), uid, req.Status, req.CustomStatus)
	if err != nil {
		serviceError(c, h.logger, "set status", err)
		return
	}
	success(c, http.StatusOK, status)
}

// GetStatus GET /online-status/:user_id
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	status, err := h.presenceService.GetStatus(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, "get status", err)
		return
	}
	success(c, http.StatusOK, status)
}

// OnlineUsers GET /online-users?window_minutes=5&exclude_offline=true
func (h *PresenceHandler) OnlineUsers(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	var q onlineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	excludeOffline := q.ExcludeOffline == nil || *q.ExcludeOffline
	users, err := h.presenceService.ListOnline(c.Request.Context(), time.Duration(q.WindowMinutes)*time.Minute, excludeOffline)
	if err != nil {
		serviceError(c, h.logger, "list online users", err)
		return
	}
	success(c, http.StatusOK, gin.H{"users": users, "count": len(users)})
}
