package models

import "time"

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

// ChatMember 频道成员，(channel_id, employee_id) 唯一
type ChatMember struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ChannelID  int64      `gorm:"not null;uniqueIndex:idx_member_channel_employee" json:"channel_id"`
	EmployeeID int64      `gorm:"not null;uniqueIndex:idx_member_channel_employee;index" json:"employee_id"`
	Role       string     `gorm:"size:20;not null" json:"role"`
	JoinedAt   time.Time  `gorm:"not null" json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	Active     bool       `gorm:"column:is_active;not null" json:"is_active"`
}

func (ChatMember) TableName() string {
	return "chat_members"
}

func (m *ChatMember) IsActive() bool { return m.Active }
func (m *ChatMember) MarkDeleted()   { m.Active = false }

// CanModerate reports whether the member may manage channel content.
func (m *ChatMember) CanModerate() bool {
	return m.Active && (m.Role == RoleAdmin || m.Role == RoleModerator)
}

func (m *ChatMember) IsAdmin() bool {
	return m.Active && m.Role == RoleAdmin
}
