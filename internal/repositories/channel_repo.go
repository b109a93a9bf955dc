package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// ChannelQuery 频道列表查询条件
type ChannelQuery struct {
	ViewerID    int64
	ChannelType string
	ProjectID   *int64
	IsPrivate   *bool
	IsArchived  *bool
	SortBy      string // "created_at" or "name"
	Desc        bool
	Page        Page
}

func (s *GormStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	return translate(s.conn(ctx).Create(ch).Error)
}

// GetChannel 只返回未删除的频道
func (s *GormStore) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	if err := s.conn(ctx).Scopes(active).First(&ch, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ch, nil
}

// LockChannel 在事务内以 SELECT ... FOR UPDATE 读取频道，串行化同一频道上的写操作
func (s *GormStore) LockChannel(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Scopes(active).First(&ch, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ch, nil
}

func (s *GormStore) SaveChannel(ctx context.Context, ch *models.Channel) error {
	return translate(s.conn(ctx).Save(ch).Error)
}

// ChannelNameTaken 检查 (project_id, channel_type) 范围内是否已有同名的活跃频道
func (s *GormStore) ChannelNameTaken(ctx context.Context, projectID *int64, channelType, name string, excludeID int64) (bool, error) {
	q := s.conn(ctx).Model(&models.Channel{}).Scopes(active).
		Where("name = ? AND channel_type = ?", name, channelType)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", *projectID)
	}
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

// DeleteChannelCascade 物理删除频道及其成员、消息、回应
func (s *GormStore) DeleteChannelCascade(ctx context.Context, id int64) error {
	db := s.conn(ctx)
	messageIDs := db.Model(&models.ChatMessage{}).Select("id").Where("channel_id = ?", id)
	if err := db.Where("message_id IN (?)", messageIDs).Delete(&models.MessageReaction{}).Error; err != nil {
		return err
	}
	if err := db.Where("channel_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
		return err
	}
	if err := db.Where("channel_id = ?", id).Delete(&models.ChatMember{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Channel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChannels 返回公开频道以及 viewer 为活跃成员的私有频道
func (s *GormStore) ListChannels(ctx context.Context, q ChannelQuery) ([]models.Channel, int64, error) {
	db := s.conn(ctx)
	memberOf := db.Model(&models.ChatMember{}).Select("channel_id").
		Where("employee_id = ? AND is_active = ?", q.ViewerID, true)

	query := db.Model(&models.Channel{}).Scopes(active).
		Where(db.Where("is_private = ?", false).Or("id IN (?)", memberOf))
	if q.ChannelType != "" {
		query = query.Where("channel_type = ?", q.ChannelType)
	}
	if q.ProjectID != nil {
		query = query.Where("project_id = ?", *q.ProjectID)
	}
	if q.IsPrivate != nil {
		query = query.Where("is_private = ?", *q.IsPrivate)
	}
	if q.IsArchived != nil {
		query = query.Where("is_archived = ?", *q.IsArchived)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := "created_at"
	if q.SortBy == "name" {
		column = "name"
	}
	dir := orderDirection(q.Desc)

	var channels []models.Channel
	err := query.Order(column + " " + dir).Order("id " + dir).
		Offset(q.Page.Offset).Limit(q.Page.Limit).
		Find(&channels).Error
	return channels, total, err
}

// RecordChannelMessage 原子递增消息计数并刷新 last_message_at
func (s *GormStore) RecordChannelMessage(ctx context.Context, channelID int64, at time.Time) error {
	return s.conn(ctx).Model(&models.Channel{}).Where("id = ?", channelID).
		UpdateColumns(map[string]any{
			"message_count":   gorm.Expr("message_count + ?", 1),
			"last_message_at": at,
		}).Error
}
