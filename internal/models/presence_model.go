package models

import "time"

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// OnlineStatus 用户在线状态，每个用户一行
type OnlineStatus struct {
	EmployeeID   int64     `gorm:"primaryKey;autoIncrement:false" json:"employee_id"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	CustomStatus string    `gorm:"size:255" json:"custom_status,omitempty"`
	LastSeen     time.Time `gorm:"not null;index" json:"last_seen"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (OnlineStatus) TableName() string {
	return "online_statuses"
}

// IsOnline is derived at read time; it is never stored.
func (s *OnlineStatus) IsOnline(now time.Time, window time.Duration) bool {
	return s.Status != StatusOffline && now.Sub(s.LastSeen) < window
}

// Profile 本地缓存的员工显示名，来自 token claims
type Profile struct {
	EmployeeID  int64     `gorm:"primaryKey;autoIncrement:false" json:"employee_id"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "chat_profiles"
}

// AuditLog 审计日志
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EventType  string    `gorm:"size:64;not null;index" json:"event_type"`
	ActorID    int64     `gorm:"index" json:"actor_id"`
	ChannelID  *int64    `gorm:"index" json:"channel_id,omitempty"`
	Payload    string    `gorm:"type:text" json:"payload"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
}

func (AuditLog) TableName() string {
	return "chat_audit_logs"
}
