package models

import (
	"encoding/json"
	"time"
)

const (
	MessageTypeText         = "text"
	MessageTypeFile         = "file"
	MessageTypeImage        = "image"
	MessageTypeSystem       = "system"
	MessageTypeAnnouncement = "announcement"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeSystem, MessageTypeAnnouncement:
		return true
	}
	return false
}

// Attachment is an opaque client-supplied object (file name, url, size...).
type Attachment map[string]any

// ChatMessage 频道消息
type ChatMessage struct {
	ID              int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ChannelID       int64      `gorm:"not null;index:idx_message_channel_created" json:"channel_id"`
	SenderID        int64      `gorm:"not null;index" json:"sender_id"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	MessageType     string     `gorm:"size:20;not null" json:"message_type"`
	ParentMessageID *int64     `gorm:"index" json:"parent_message_id,omitempty"`
	ThreadCount     int64      `gorm:"not null" json:"thread_count"`
	MentionedUsers  string     `gorm:"type:text" json:"-"`
	Attachments     string     `gorm:"type:text" json:"-"`
	IsEdited        bool       `gorm:"not null" json:"is_edited"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	IsPinned        bool       `gorm:"not null" json:"is_pinned"`
	CreatedAt       time.Time  `gorm:"index:idx_message_channel_created" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Active          bool       `gorm:"column:is_active;not null" json:"is_active"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m *ChatMessage) IsActive() bool { return m.Active }
func (m *ChatMessage) MarkDeleted()   { m.Active = false }

// Mentions decodes the mentioned_users column.
func (m *ChatMessage) Mentions() ([]int64, error) {
	return decodeInt64s(m.MentionedUsers)
}

func (m *ChatMessage) SetMentions(ids []int64) error {
	raw, err := encodeJSON(ids)
	if err != nil {
		return err
	}
	m.MentionedUsers = raw
	return nil
}

// AttachmentList decodes the attachments column.
func (m *ChatMessage) AttachmentList() ([]Attachment, error) {
	return decodeAttachments(m.Attachments)
}

func (m *ChatMessage) SetAttachments(list []Attachment) error {
	raw, err := encodeJSON(list)
	if err != nil {
		return err
	}
	m.Attachments = raw
	return nil
}

// MessageReaction 表情回应，(message_id, employee_id, emoji) 唯一
type MessageReaction struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	MessageID  int64     `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"message_id"`
	EmployeeID int64     `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"employee_id"`
	Emoji      string    `gorm:"size:50;not null;uniqueIndex:idx_reaction_unique" json:"emoji"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `gorm:"column:is_active;not null" json:"is_active"`
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}

func (r *MessageReaction) IsActive() bool { return r.Active }
func (r *MessageReaction) MarkDeleted()   { r.Active = false }

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeInt64s(raw string) ([]int64, error) {
	if raw == "" || raw == "null" {
		return []int64{}, nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAttachments(raw string) ([]Attachment, error) {
	if raw == "" || raw == "null" {
		return []Attachment{}, nil
	}
	var out []Attachment
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
