package models

import "time"

const (
	ChannelTypeProject = "project"
	ChannelTypeTeam    = "team"
	ChannelTypeDirect  = "direct"
	ChannelTypeGeneral = "general"
)

// ValidChannelType 校验频道类型
func ValidChannelType(t string) bool {
	switch t {
	case ChannelTypeProject, ChannelTypeTeam, ChannelTypeDirect, ChannelTypeGeneral:
		return true
	}
	return false
}

// Channel 频道模型
type Channel struct {
	ID            int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name          string     `gorm:"size:255;not null;index:idx_channel_scope" json:"name"`
	Description   string     `gorm:"size:1000" json:"description"`
	ChannelType   string     `gorm:"size:20;not null;index:idx_channel_scope" json:"channel_type"`
	IsPrivate     bool       `gorm:"not null" json:"is_private"`
	IsArchived    bool       `gorm:"not null" json:"is_archived"`
	ProjectID     *int64     `gorm:"index:idx_channel_scope" json:"project_id,omitempty"`
	CreatedBy     int64      `gorm:"not null" json:"created_by"`
	UpdatedBy     int64      `json:"updated_by,omitempty"`
	MessageCount  int64      `gorm:"not null" json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Active        bool       `gorm:"column:is_active;not null;index" json:"is_active"`
}

func (Channel) TableName() string {
	return "chat_channels"
}

func (c *Channel) IsActive() bool { return c.Active }

// MarkDeleted 软删除同时归档
func (c *Channel) MarkDeleted() {
	c.Active = false
	c.IsArchived = true
}
