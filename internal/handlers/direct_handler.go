package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/services"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// DirectHandler 私信
type DirectHandler struct {
	directService *services.DirectMessageService
	logger        *logger.Logger
}

func NewDirectHandler(directService *services.DirectMessageService, log *logger.Logger) *DirectHandler {
	return &DirectHandler{directService: directService, logger: namedLogger(log, "direct_handler")}
}

// Send POST /direct-messages
func (h *DirectHandler) Send(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.SendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	dm, err := h.directService.Send(c.Request.Context(), &req, uid)
	if err != nil {
		serviceError(c, h.logger, "send direct message", err)
		return
	}
	success(c, http.StatusCreated, dm)
}

// Conversation GET /direct-messages/:user_id
func (h *DirectHandler) Conversation(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	other, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.directService.ListConversation(c.Request.Context(), uid, other, page)
	if err != nil {
		serviceError(c, h.logger, "list conversation", err)
		return
	}
	success(c, http.StatusOK, result)
}

// MarkRead PUT /direct-messages/:user_id/mark-read
// 把 user_id 发给当前用户的未读私信标为已读
func (h *DirectHandler) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	sender, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	n, err := h.directService.MarkRead(c.Request.Context(), sender, uid)
	if err != nil {
		serviceError(c, h.logger, "mark direct messages read", err)
		return
	}
	success(c, http.StatusOK, gin.H{"marked_read": n})
}
