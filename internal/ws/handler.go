package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/config"
	"github.com/Gopher0727/ProjectChat/internal/services"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const writeWait = 10 * time.Second

// ChannelReader 校验用户能否进入频道
type ChannelReader interface {
	GetChannel(ctx context.Context, channelID, actor int64) (*services.ChannelDTO, error)
}

// MessageSender 处理上行消息
type MessageSender interface {
	SendMessage(ctx context.Context, req *services.SendMessageRequest, sender int64) (*services.MessageDTO, error)
}

// PresenceUpdater 心跳与输入状态
type PresenceUpdater interface {
	TouchLastSeen(ctx context.Context, userID int64)
	Typing(ctx context.Context, channelID, userID int64, typing bool)
}

// Handler 处理 WebSocket 连接的生命周期与上行帧
type Handler struct {
	hub      *Hub
	channels ChannelReader
	messages MessageSender
	presence PresenceUpdater
	cfg      config.WebsocketConfig
	upgrader websocket.Upgrader
	logger   *logger.Logger
	now      func() time.Time
}

func NewHandler(hub *Hub, channels ChannelReader, messages MessageSender, presence PresenceUpdater, cfg config.WebsocketConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		hub:      hub,
		channels: channels,
		messages: messages,
		presence: presence,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.Named("ws"),
		now:    time.Now,
	}
}

func (h *Handler) pongWait() time.Duration {
	if h.cfg.ConnectionTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(h.cfg.ConnectionTimeout) * time.Second
}

func (h *Handler) pingPeriod() time.Duration {
	if h.cfg.HeartbeatInterval <= 0 {
		return h.pongWait() * 9 / 10
	}
	return time.Duration(h.cfg.HeartbeatInterval) * time.Second
}

// ServeWS GET /ws/:channel_id，用户身份由认证中间件放入 "user_id"
func (h *Handler) ServeWS(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "unauthorized"})
		return
	}
	channelID, err := strconv.ParseInt(c.Param("channel_id"), 10, 64)
	if err != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "invalid channel_id"})
		return
	}

	// 连接在请求返回后继续存活，保留请求上下文中的身份但不继承取消
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := h.channels.GetChannel(ctx, channelID, userID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrPermission):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to upgrade websocket", zap.Error(err))
		return
	}

	wc := NewConnection(ctx, channelID, userID, conn, h.cfg.SendBuffer)
	h.hub.Connect(wc, channelID, userID)
	h.presence.TouchLastSeen(ctx, userID)
	h.logger.InfoContext(ctx, "websocket connected", zap.Int64("channel_id", channelID))

	go h.writePump(wc)
	go h.readPump(wc)
}

func (h *Handler) readPump(c *Connection) {
	defer func() {
		h.hub.release(c, c.ChannelID, c.UserID)
		h.hub.SetTyping(c.ChannelID, c.UserID, false)
		c.Close()
		h.logger.InfoContext(c.Context(), "websocket disconnected",
			zap.Int64("channel_id", c.ChannelID), zap.Int64("user_id", c.UserID))
	}()

	if h.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(int64(h.cfg.MaxMessageBytes))
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.UpdateHeartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WarnContext(c.Context(), "websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
		h.HandleFrame(c.Context(), c, c.ChannelID, c.UserID, data)
	}
}

func (h *Handler) writePump(c *Connection) {
	ticker := time.NewTicker(h.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.Context().Done():
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.writeMessage(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			if err := c.writeMessage(websocket.TextMessage, data, time.Now().Add(writeWait)); err != nil {
				h.logger.DebugContext(c.Context(), "websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// HandleFrame 处理一个上行帧，回复只写给发送者
func (h *Handler) HandleFrame(ctx context.Context, peer Peer, channelID, userID int64, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.reply(peer, errorFrame("Invalid message format", h.now()))
		return
	}

	switch in.Type {
	case InboundMessage:
		msg, err := h.messages.SendMessage(ctx, &services.SendMessageRequest{
			ChannelID:       channelID,
			Content:         in.Content,
			MessageType:     in.MessageType,
			ParentMessageID: in.ParentMessageID,
			MentionedUsers:  in.MentionedUsers,
			Attachments:     in.Attachments,
		}, userID)
		if err != nil {
			h.logger.WarnContext(ctx, "failed to process websocket message",
				zap.Int64("channel_id", channelID), zap.Error(err))
			h.reply(peer, errorFrame(fmt.Sprintf("Failed to process message: %v", err), h.now()))
			return
		}
		h.hub.SetTyping(channelID, userID, false)
		h.reply(peer, NewFrame(FrameMessageSent, channelID, userID, msg, h.now()))

	case InboundTypingStart, InboundTypingStop:
		typing := in.Type == InboundTypingStart
		h.hub.SetTyping(channelID, userID, typing)
		h.presence.Typing(ctx, channelID, userID, typing)

	case InboundPing:
		h.presence.TouchLastSeen(ctx, userID)
		h.reply(peer, NewFrame(FramePong, channelID, userID, nil, h.now()))

	default:
		h.logger.DebugContext(ctx, "ignoring unknown frame type", zap.String("type", in.Type))
	}
}

func (h *Handler) reply(peer Peer, f Frame) {
	data, err := f.encode()
	if err != nil {
		h.logger.Error("failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	if !peer.Send(data) {
		h.logger.Warn("dropping reply for slow or closed peer", zap.String("type", f.Type))
	}
}
