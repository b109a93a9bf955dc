// Package events defines the closed set of chat domain events and the
// dispatcher that fans them out to listeners.
package events

import (
	"time"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// Kind tags every event variant. The set is closed: listeners declare a
// route (or an explicit ignore) per kind.
type Kind string

const (
	KindChannelCreated      Kind = "channel_created"
	KindChannelUpdated      Kind = "channel_updated"
	KindChannelDeleted      Kind = "channel_deleted"
	KindMemberJoined        Kind = "member_joined"
	KindMemberLeft          Kind = "member_left"
	KindMemberRoleChanged   Kind = "member_role_changed"
	KindBulkMembersAdded    Kind = "bulk_members_added"
	KindMessageSent         Kind = "message_sent"
	KindMessageUpdated      Kind = "message_updated"
	KindMessageDeleted      Kind = "message_deleted"
	KindThreadStarted       Kind = "thread_started"
	KindReactionAdded       Kind = "reaction_added"
	KindReactionRemoved     Kind = "reaction_removed"
	KindDirectMessageSent   Kind = "direct_message_sent"
	KindDirectMessageRead   Kind = "direct_message_read"
	KindOnlineStatusChanged Kind = "online_status_changed"
	KindUserTyping          Kind = "user_typing"
)

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindChannelCreated, KindChannelUpdated, KindChannelDeleted,
		KindMemberJoined, KindMemberLeft, KindMemberRoleChanged, KindBulkMembersAdded,
		KindMessageSent, KindMessageUpdated, KindMessageDeleted, KindThreadStarted,
		KindReactionAdded, KindReactionRemoved,
		KindDirectMessageSent, KindDirectMessageRead,
		KindOnlineStatusChanged, KindUserTyping,
	}
}

// Event is implemented by every concrete event struct.
type Event interface {
	Kind() Kind
	Actor() int64
	Channel() int64
	OccurredAt() time.Time
}

// Base carries the fields common to all events.
type Base struct {
	ActorID   int64     `json:"actor_id"`
	ChannelID int64     `json:"channel_id,omitempty"`
	At        time.Time `json:"occurred_at"`
}

func NewBase(actorID, channelID int64, at time.Time) Base {
	return Base{ActorID: actorID, ChannelID: channelID, At: at}
}

func (b Base) Actor() int64          { return b.ActorID }
func (b Base) Channel() int64        { return b.ChannelID }
func (b Base) OccurredAt() time.Time { return b.At }

// MessageSnapshot is the wire view of a channel message at emit time.
type MessageSnapshot struct {
	ID              int64               `json:"id"`
	ChannelID       int64               `json:"channel_id"`
	SenderID        int64               `json:"sender_id"`
	SenderName      string              `json:"sender_name,omitempty"`
	Content         string              `json:"content"`
	MessageType     string              `json:"message_type"`
	ParentMessageID *int64              `json:"parent_message_id,omitempty"`
	ThreadCount     int64               `json:"thread_count"`
	MentionedUsers  []int64             `json:"mentioned_users"`
	Attachments     []models.Attachment `json:"attachments"`
	IsEdited        bool                `json:"is_edited"`
	IsPinned        bool                `json:"is_pinned"`
	CreatedAt       time.Time           `json:"created_at"`
}

// DirectSnapshot is the wire view of a direct message.
type DirectSnapshot struct {
	ID          int64               `json:"id"`
	SenderID    int64               `json:"sender_id"`
	SenderName  string              `json:"sender_name,omitempty"`
	RecipientID int64               `json:"recipient_id"`
	Content     string              `json:"content"`
	MessageType string              `json:"message_type"`
	Attachments []models.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"created_at"`
}

type ChannelCreated struct {
	Base
	Detail models.Channel `json:"channel"`
}

type ChannelUpdated struct {
	Base
	Changes map[string]any `json:"changes"`
}

type ChannelDeleted struct {
	Base
	Hard bool `json:"hard"`
}

type MemberJoined struct {
	Base
	EmployeeID  int64  `json:"employee_id"`
	Role        string `json:"role"`
	Reactivated bool   `json:"reactivated"`
}

type MemberLeft struct {
	Base
	EmployeeID int64 `json:"employee_id"`
}

type MemberRoleChanged struct {
	Base
	EmployeeID int64  `json:"employee_id"`
	OldRole    string `json:"old_role"`
	NewRole    string `json:"new_role"`
}

type BulkMembersAdded struct {
	Base
	Added       []int64 `json:"added"`
	FailedCount int     `json:"failed_count"`
}

type MessageSent struct {
	Base
	Message MessageSnapshot `json:"message"`
}

type MessageUpdated struct {
	Base
	MessageID int64          `json:"message_id"`
	Changes   map[string]any `json:"changes"`
}

type MessageDeleted struct {
	Base
	MessageID int64 `json:"message_id"`
	Hard      bool  `json:"hard"`
}

type ThreadStarted struct {
	Base
	ParentMessageID int64 `json:"parent_message_id"`
	ReplyID         int64 `json:"reply_id"`
}

type ReactionAdded struct {
	Base
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ReactionRemoved struct {
	Base
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type DirectMessageSent struct {
	Base
	Message DirectSnapshot `json:"message"`
}

// DirectMessageRead is emitted by the recipient; SenderID is the other party.
type DirectMessageRead struct {
	Base
	SenderID int64 `json:"sender_id"`
	Count    int64 `json:"count"`
}

type OnlineStatusChanged struct {
	Base
	OldStatus    string `json:"old_status"`
	NewStatus    string `json:"new_status"`
	CustomStatus string `json:"custom_status,omitempty"`
}

type UserTyping struct {
	Base
	IsTyping bool `json:"is_typing"`
}

func (ChannelCreated) Kind() Kind      { return KindChannelCreated }
func (ChannelUpdated) Kind() Kind      { return KindChannelUpdated }
func (ChannelDeleted) Kind() Kind      { return KindChannelDeleted }
func (MemberJoined) Kind() Kind        { return KindMemberJoined }
func (MemberLeft) Kind() Kind          { return KindMemberLeft }
func (MemberRoleChanged) Kind() Kind   { return KindMemberRoleChanged }
func (BulkMembersAdded) Kind() Kind    { return KindBulkMembersAdded }
func (MessageSent) Kind() Kind         { return KindMessageSent }
func (MessageUpdated) Kind() Kind      { return KindMessageUpdated }
func (MessageDeleted) Kind() Kind      { return KindMessageDeleted }
func (ThreadStarted) Kind() Kind       { return KindThreadStarted }
func (ReactionAdded) Kind() Kind       { return KindReactionAdded }
func (ReactionRemoved) Kind() Kind     { return KindReactionRemoved }
func (DirectMessageSent) Kind() Kind   { return KindDirectMessageSent }
func (DirectMessageRead) Kind() Kind   { return KindDirectMessageRead }
func (OnlineStatusChanged) Kind() Kind { return KindOnlineStatusChanged }
func (UserTyping) Kind() Kind          { return KindUserTyping }
