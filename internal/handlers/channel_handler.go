package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/services"
	"github.com/Gopher0727/ProjectChat/internal/ws"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// RoomPresence 本节点上频道的在线连接
type RoomPresence interface {
	ChannelUsers(channelID int64) []ws.ChannelUser
}

// ChannelHandler 频道与成员管理
type ChannelHandler struct {
	channelService *services.ChannelService
	rooms          RoomPresence
	logger         *logger.Logger
}

func NewChannelHandler(channelService *services.ChannelService, rooms RoomPresence, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		channelService: channelService,
		rooms:          rooms,
		logger:         namedLogger(log, "channel_handler"),
	}
}

type addMemberRequest struct {
	EmployeeID int64  `json:"employee_id" binding:"required"`
	Role       string `json:"role"`
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type bulkAddRequest struct {
	EmployeeIDs []int64 `json:"employee_ids" binding:"required"`
	Role        string  `json:"role"`
}

// CreateChannel POST /channels
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := h.channelService.CreateChannel(c.Request.Context(), &req, uid)
	if err != nil {
		serviceError(c, h.logger, "create channel", err)
		return
	}
	success(c, http.StatusCreated, ch)
}

// ListChannels GET /channels
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var filter services.ChannelFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.channelService.ListChannels(c.Request.Context(), filter, page, uid)
	if err != nil {
		serviceError(c, h.logger, "list channels", err)
		return
	}
	success(c, http.StatusOK, result)
}

// GetChannel GET /channels/:channel_id
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	ch, err := h.channelService.GetChannel(c.Request.Context(), channelID, uid)
	if err != nil {
		serviceError(c, h.logger, "get channel", err)
		return
	}
	success(c, http.StatusOK, ch)
}

// UpdateChannel PUT /channels/:channel_id
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	var req services.UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := h.channelService.UpdateChannel(c.Request.Context(), channelID, &req, uid)
	if err != nil {
		serviceError(c, h.logger, "update channel", err)
		return
	}
	success(c, http.StatusOK, ch)
}

// DeleteChannel DELETE /channels/:channel_id?hard=true
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	hard := c.Query("hard") == "true"
	if err := h.channelService.DeleteChannel(c.Request.Context(), channelID, uid, hard); err != nil {
		serviceError(c, h.logger, "delete channel", err)
		return
	}
	success(c, http.StatusOK, gin.H{"channel_id": channelID, "hard": hard})
}

// AddMember POST /channels/:channel_id/members
func (h *ChannelHandler) AddMember(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	member, err := h.channelService.AddMember(c.Request.Context(), channelID, req.EmployeeID, req.Role, uid)
	if err != nil {
		serviceError(c, h.logger, "add member", err)
		return
	}
	success(c, http.StatusCreated, member)
}

// ListMembers GET /channels/:channel_id/members?role=
func (h *ChannelHandler) ListMembers(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	members, err := h.channelService.ListMembers(c.Request.Context(), channelID, c.Query("role"), uid)
	if err != nil {
		serviceError(c, h.logger, "list members", err)
		return
	}
	success(c, http.StatusOK, members)
}

// RemoveMember DELETE /channels/:channel_id/members/:employee_id
func (h *ChannelHandler) RemoveMember(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	employeeID, ok := idParam(c, "employee_id")
	if !ok {
		return
	}
	if err := h.channelService.RemoveMember(c.Request.Context(), channelID, employeeID, uid); err != nil {
		serviceError(c, h.logger, "remove member", err)
		return
	}
	success(c, http.StatusOK, gin.H{"channel_id": channelID, "employee_id": employeeID})
}

// ChangeRole PUT /channels/:channel_id/members/:employee_id/role
func (h *ChannelHandler) ChangeRole(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	employeeID, ok := idParam(c, "employee_id")
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	member, err := h.channelService.ChangeRole(c.Request.Context(), channelID, employeeID, req.Role, uid)
	if err != nil {
		serviceError(c, h.logger, "change role", err)
		return
	}
	success(c, http.StatusOK, member)
}

// BulkAddMembers POST /channels/:channel_id/members/bulk-add
func (h *ChannelHandler) BulkAddMembers(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	var req bulkAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.channelService.BulkAddMembers(c.Request.Context(), channelID, req.EmployeeIDs, req.Role, uid)
	if err != nil {
		serviceError(c, h.logger, "bulk add members", err)
		return
	}
	success(c, http.StatusOK, result)
}

// Statistics GET /channels/:channel_id/statistics
func (h *ChannelHandler) Statistics(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	stats, err := h.channelService.Statistics(c.Request.Context(), channelID, uid)
	if err != nil {
		serviceError(c, h.logger, "channel statistics", err)
		return
	}
	success(c, http.StatusOK, stats)
}

// OnlineUsers GET /channels/:channel_id/online-users
// 只反映本节点的连接
func (h *ChannelHandler) OnlineUsers(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	channelID, ok := idParam(c, "channel_id")
	if !ok {
		return
	}
	if _, err := h.channelService.GetChannel(c.Request.Context(), channelID, uid); err != nil {
		serviceError(c, h.logger, "channel online users", err)
		return
	}
	users := []ws.ChannelUser{}
	if h.rooms != nil {
		users = h.rooms.ChannelUsers(channelID)
	}
	success(c, http.StatusOK, gin.H{"channel_id": channelID, "users": users, "count": len(users)})
}
