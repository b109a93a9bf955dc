package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/services"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// MessageHandler 频道消息、表情回应与搜索
type MessageHandler struct {
	messageService  *services.MessageService
	reactionService *services.ReactionService
	logger          *logger.Logger
}

func NewMessageHandler(messageService *services.MessageService, reactionService *services.ReactionService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService:  messageService,
		reactionService: reactionService,
		logger:          namedLogger(log, "message_handler"),
	}
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// SendMessage POST /channels/:channel_id/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	var req services.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	req.ChannelID = channelID

	msg, err := h.messageService.SendMessage(c.Request.Context(), &req, uid)
	if err != nil {
		serviceError(c, h.logger, "send message", err)
		return
	}
	success(c, http.StatusCreated, msg)
}

// ListMessages GET /channels/:channel_id/messages
func (h *MessageHandler) ListMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	var filter services.MessageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.messageService.ListMessages(c.Request.Context(), channelID, filter, page, uid)
	if err != nil {
		serviceError(c, h.logger, "list messages", err)
		return
	}
	success(c, http.StatusOK, result)
}

// UpdateMessage PUT /messages/:message_id
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	var req services.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := h.messageService.UpdateMessage(c.Request.Context(), messageID, &req, uid)
	if err != nil {
		serviceError(c, h.logger, "update message", err)
		return
	}
	success(c, http.StatusOK, msg)
}

// DeleteMessage DELETE /messages/:message_id?hard=true
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	hard := c.Query("hard") == "true"
	if err := h.messageService.DeleteMessage(c.Request.Context(), messageID, uid, hard); err != nil {
		serviceError(c, h.logger, "delete message", err)
		return
	}
	success(c, http.StatusOK, gin.H{"message_id": messageID, "hard": hard})
}

// AddReaction POST /messages/:message_id/reactions
func (h *MessageHandler) AddReaction(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	reaction, err := h.reactionService.AddReaction(c.Request.Context(), messageID, req.Emoji, uid)
	if err != nil {
		serviceError(c, h.logger, "add reaction", err)
		return
	}
	success(c, http.StatusOK, reaction)
}

// RemoveReaction DELETE /messages/:message_id/reactions/:emoji
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	removed, err := h.reactionService.RemoveReaction(c.Request.Context(), messageID, c.Param("emoji"), uid)
	if err != nil {
		serviceError(c, h.logger, "remove reaction", err)
		return
	}
	if !removed {
		fail(c, http.StatusNotFound, "reaction not found")
		return
	}
	success(c, http.StatusOK, gin.H{"message_id": messageID, "emoji": c.Param("emoji")})
}

// SearchMessages POST /search/messages
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.messageService.SearchMessages(c.Request.Context(), &req, page, uid)
	if err != nil {
		serviceError(c, h.logger, "search messages", err)
		return
	}
	success(c, http.StatusOK, result)
}
