package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// MessageQuery 消息列表/搜索条件
type MessageQuery struct {
	ChannelIDs      []int64
	ParentMessageID *int64 // nil 表示只查顶层消息
	AnyDepth        bool   // 搜索时不区分顶层与回复
	MessageTypes    []string
	SenderIDs       []int64
	IsPinned        *bool
	DateFrom        *time.Time
	DateTo          *time.Time
	Search          string
	Desc            bool
	Page            Page
}

// MessageStats 频道统计
type MessageStats struct {
	TotalMessages    int64
	MessagesSince    int64
	MostActiveMember *int64
	MostActiveCount  int64
}

func (s *GormStore) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.conn(ctx).Create(msg).Error
}

// GetMessage 只返回未删除的消息
func (s *GormStore) GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := s.conn(ctx).Scopes(active).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (s *GormStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.conn(ctx).Save(msg).Error
}

// IncrementThreadCount 原子递增回复数，返回递增后的值
func (s *GormStore) IncrementThreadCount(ctx context.Context, id int64) (int64, error) {
	db := s.conn(ctx)
	res := db.Model(&models.ChatMessage{}).Where("id = ?", id).
		UpdateColumn("thread_count", gorm.Expr("thread_count + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	var count int64
	err := db.Model(&models.ChatMessage{}).Where("id = ?", id).Pluck("thread_count", &count).Error
	return count, err
}

// DeleteMessageCascade 物理删除消息、整棵回复树以及它们的回应
func (s *GormStore) DeleteMessageCascade(ctx context.Context, id int64) error {
	db := s.conn(ctx)
	ids := []int64{id}
	frontier := []int64{id}
	for len(frontier) > 0 {
		var children []int64
		if err := db.Model(&models.ChatMessage{}).Where("parent_message_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return err
		}
		ids = append(ids, children...)
		frontier = children
	}
	if err := db.Where("message_id IN ?", ids).Delete(&models.MessageReaction{}).Error; err != nil {
		return err
	}
	res := db.Where("id IN ?", ids).Delete(&models.ChatMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages 过滤、排序、分页，总数与分页使用同一条件
func (s *GormStore) ListMessages(ctx context.Context, q MessageQuery) ([]models.ChatMessage, int64, error) {
	query := s.conn(ctx).Model(&models.ChatMessage{}).Scopes(active)
	if len(q.ChannelIDs) > 0 {
		query = query.Where("channel_id IN ?", q.ChannelIDs)
	}
	switch {
	case q.ParentMessageID != nil:
		query = query.Where("parent_message_id = ?", *q.ParentMessageID)
	case !q.AnyDepth:
		query = query.Where("parent_message_id IS NULL")
	}
	if len(q.MessageTypes) > 0 {
		query = query.Where("message_type IN ?", q.MessageTypes)
	}
	if len(q.SenderIDs) > 0 {
		query = query.Where("sender_id IN ?", q.SenderIDs)
	}
	if q.IsPinned != nil {
		query = query.Where("is_pinned = ?", *q.IsPinned)
	}
	if q.DateFrom != nil {
		query = query.Where("created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		query = query.Where("created_at <= ?", *q.DateTo)
	}
	if q.Search != "" {
		query = query.Where(`LOWER(content) LIKE ? ESCAPE '\'`, likePattern(q.Search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := orderDirection(q.Desc)
	var messages []models.ChatMessage
	err := query.Order("created_at " + dir).Order("id " + dir).
		Offset(q.Page.Offset).Limit(q.Page.Limit).
		Find(&messages).Error
	return messages, total, err
}

// MessageStats 统计活跃消息总数、since 之后的消息数以及发言最多的成员
func (s *GormStore) MessageStats(ctx context.Context, channelID int64, since time.Time) (*MessageStats, error) {
	db := s.conn(ctx)
	base := func() *gorm.DB {
		return db.Model(&models.ChatMessage{}).Scopes(active).Where("channel_id = ?", channelID)
	}

	stats := &MessageStats{}
	if err := base().Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := base().Where("created_at >= ?", since).Count(&stats.MessagesSince).Error; err != nil {
		return nil, err
	}

	var top []struct {
		SenderID int64
		Total    int64
	}
	err := base().Select("sender_id, COUNT(*) AS total").
		Group("sender_id").
		Order("total DESC").Order("sender_id ASC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, err
	}
	if len(top) == 1 {
		stats.MostActiveMember = &top[0].SenderID
		stats.MostActiveCount = top[0].Total
	}
	return stats, nil
}

func (s *GormStore) GetReaction(ctx context.Context, messageID, employeeID int64, emoji string) (*models.MessageReaction, error) {
	var r models.MessageReaction
	err := s.conn(ctx).
		Where("message_id = ? AND employee_id = ? AND emoji = ?", messageID, employeeID, emoji).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) CreateReaction(ctx context.Context, r *models.MessageReaction) error {
	return s.conn(ctx).Create(r).Error
}

func (s *GormStore) SaveReaction(ctx context.Context, r *models.MessageReaction) error {
	return s.conn(ctx).Save(r).Error
}

// ListReactions 批量加载活跃回应，按创建时间排序
func (s *GormStore) ListReactions(ctx context.Context, messageIDs []int64) ([]models.MessageReaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []models.MessageReaction
	err := s.conn(ctx).Scopes(active).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").Order("id ASC").
		Find(&reactions).Error
	return reactions, err
}
