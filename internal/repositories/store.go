package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

var (
	// ErrNotFound 记录不存在（或已软删除）
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
)

// Page 偏移分页
type Page struct {
	Offset int
	Limit  int
}

type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *models.Channel) error
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	LockChannel(ctx context.Context, id int64) (*models.Channel, error)
	SaveChannel(ctx context.Context, ch *models.Channel) error
	ChannelNameTaken(ctx context.Context, projectID *int64, channelType, name string, excludeID int64) (bool, error)
	DeleteChannelCascade(ctx context.Context, id int64) error
	ListChannels(ctx context.Context, q ChannelQuery) ([]models.Channel, int64, error)
	RecordChannelMessage(ctx context.Context, channelID int64, at time.Time) error
}

type MemberStore interface {
	GetMember(ctx context.Context, channelID, employeeID int64) (*models.ChatMember, error)
	CreateMember(ctx context.Context, m *models.ChatMember) error
	SaveMember(ctx context.Context, m *models.ChatMember) error
	CountAdmins(ctx context.Context, channelID int64) (int64, error)
	CountMembers(ctx context.Context, channelIDs []int64) (map[int64]int64, error)
	ListMembers(ctx context.Context, channelID int64, role string) ([]models.ChatMember, error)
	MemberChannelIDs(ctx context.Context, employeeID int64) ([]int64, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error)
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	IncrementThreadCount(ctx context.Context, id int64) (int64, error)
	DeleteMessageCascade(ctx context.Context, id int64) error
	ListMessages(ctx context.Context, q MessageQuery) ([]models.ChatMessage, int64, error)
	MessageStats(ctx context.Context, channelID int64, since time.Time) (*MessageStats, error)
}

type ReactionStore interface {
	GetReaction(ctx context.Context, messageID, employeeID int64, emoji string) (*models.MessageReaction, error)
	CreateReaction(ctx context.Context, r *models.MessageReaction) error
	SaveReaction(ctx context.Context, r *models.MessageReaction) error
	ListReactions(ctx context.Context, messageIDs []int64) ([]models.MessageReaction, error)
}

type DirectMessageStore interface {
	CreateDirectMessage(ctx context.Context, dm *models.DirectMessage) error
	ListConversation(ctx context.Context, userA, userB int64, page Page) ([]models.DirectMessage, int64, error)
	MarkDirectRead(ctx context.Context, senderID, recipientID int64, at time.Time) (int64, error)
}

type PresenceStore interface {
	GetStatus(ctx context.Context, employeeID int64) (*models.OnlineStatus, error)
	SaveStatus(ctx context.Context, s *models.OnlineStatus) error
	TouchLastSeen(ctx context.Context, employeeID int64, at time.Time) error
	ListOnline(ctx context.Context, since time.Time, excludeOffline bool) ([]models.OnlineStatus, error)
}

type ProfileStore interface {
	UpsertProfile(ctx context.Context, p *models.Profile) error
	DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Store 聊天核心依赖的持久化接口
type Store interface {
	ChannelStore
	MemberStore
	MessageStore
	ReactionStore
	DirectMessageStore
	PresenceStore
	ProfileStore
	AuditStore

	// Tx runs fn inside one transaction; fn must only use the Store it receives.
	Tx(ctx context.Context, fn func(Store) error) error
}

// GormStore 基于 GORM 的 Store 实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// channelNameIndex 活跃频道在 (channel_type, project_id, name) 范围内唯一，project_id 为空视为同一范围
const channelNameIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_channels_active_name
	ON chat_channels (channel_type, COALESCE(project_id, 0), name) WHERE is_active`

// AutoMigrate 迁移聊天相关的所有表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Channel{},
		&models.ChatMember{},
		&models.ChatMessage{},
		&models.MessageReaction{},
		&models.DirectMessage{},
		&models.OnlineStatus{},
		&models.Profile{},
		&models.AuditLog{},
	); err != nil {
		return err
	}
	return db.Exec(channelNameIndex).Error
}

func (s *GormStore) Tx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// active 统一的软删除过滤
func active(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func orderDirection(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

// likePattern 生成大小写不敏感的子串匹配模式
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
