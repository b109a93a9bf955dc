package ws

import (
	"encoding/json"
	"time"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// 出站帧类型
const (
	FrameNewMessage      = "new_message"
	FrameMessageSent     = "message_sent"
	FrameMessageUpdated  = "message_updated"
	FrameMessageDeleted  = "message_deleted"
	FrameReactionAdded   = "reaction_added"
	FrameReactionRemoved = "reaction_removed"
	FrameMemberAdded     = "member_added"
	FrameMemberRemoved   = "member_removed"
	FrameChannelDeleted  = "channel_deleted"
	FrameTyping          = "typing_indicator"
	FrameStatusChange    = "status_change"
	FrameDirectMessage   = "direct_message"
	FrameUserJoined      = "user_joined"
	FrameUserLeft        = "user_left"
	FramePong            = "pong"
	FrameError           = "error"
)

// 入站帧类型
const (
	InboundMessage     = "message"
	InboundTypingStart = "typing_start"
	InboundTypingStop  = "typing_stop"
	InboundPing        = "ping"
)

// Frame 推送给客户端的 JSON 文本帧
type Frame struct {
	Type      string    `json:"type"`
	ChannelID int64     `json:"channel_id,omitempty"`
	UserID    int64     `json:"user_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFrame(typ string, channelID, userID int64, data any, at time.Time) Frame {
	return Frame{Type: typ, ChannelID: channelID, UserID: userID, Data: data, Timestamp: at.UTC()}
}

func errorFrame(msg string, at time.Time) Frame {
	return Frame{Type: FrameError, Message: msg, Timestamp: at.UTC()}
}

func (f Frame) encode() ([]byte, error) {
	return json.Marshal(f)
}

// Scope 投递范围
type Scope string

const (
	ScopeChannel      Scope = "channel"       // 频道内所有连接
	ScopeUser         Scope = "user"          // 用户的所有连接
	ScopeUserChannels Scope = "user_channels" // 用户所在的每个频道
	ScopeEvict        Scope = "evict"         // 频道广播后断开 Evict 用户，Evict 为 0 时关闭整个频道
)

// Delivery 一次投递，也是跨节点中继的消息体
type Delivery struct {
	Scope   Scope `json:"scope"`
	Target  int64 `json:"target"`
	Exclude int64 `json:"exclude,omitempty"`
	Evict   int64 `json:"evict,omitempty"`
	Frame   Frame `json:"frame"`
}

// Deliverer 把投递送到连接上；Hub 在本地投递，Relay 经 Redis 广播到所有节点
type Deliverer interface {
	Deliver(d Delivery)
}

// inbound 客户端上行帧
type inbound struct {
	Type            string              `json:"type"`
	Content         string              `json:"content"`
	MessageType     string              `json:"message_type"`
	ParentMessageID *int64              `json:"parent_message_id"`
	MentionedUsers  []int64             `json:"mentioned_users"`
	Attachments     []models.Attachment `json:"attachments"`
}
