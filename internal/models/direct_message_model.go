package models

import "time"

// DirectMessage 私信，sender_id != recipient_id
type DirectMessage struct {
	ID          int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SenderID    int64      `gorm:"not null;index:idx_dm_pair" json:"sender_id"`
	RecipientID int64      `gorm:"not null;index:idx_dm_pair" json:"recipient_id"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	MessageType string     `gorm:"size:20;not null" json:"message_type"`
	Attachments string     `gorm:"type:text" json:"-"`
	IsRead      bool       `gorm:"not null" json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

func (DirectMessage) TableName() string {
	return "direct_messages"
}

func (d *DirectMessage) AttachmentList() ([]Attachment, error) {
	return decodeAttachments(d.Attachments)
}

func (d *DirectMessage) SetAttachments(list []Attachment) error {
	raw, err := encodeJSON(list)
	if err != nil {
		return err
	}
	d.Attachments = raw
	return nil
}
