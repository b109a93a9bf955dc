package repositories

import (
	"context"
	"time"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

func (s *GormStore) CreateDirectMessage(ctx context.Context, dm *models.DirectMessage) error {
	return s.conn(ctx).Create(dm).Error
}

// ListConversation 双向会话，最新的在前
func (s *GormStore) ListConversation(ctx context.Context, userA, userB int64, page Page) ([]models.DirectMessage, int64, error) {
	query := s.conn(ctx).Model(&models.DirectMessage{}).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userA, userB, userB, userA)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var messages []models.DirectMessage
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(page.Offset).Limit(page.Limit).
		Find(&messages).Error
	return messages, total, err
}

// MarkDirectRead 批量标记已读，返回更新行数
func (s *GormStore) MarkDirectRead(ctx context.Context, senderID, recipientID int64, at time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.DirectMessage{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", senderID, recipientID, false).
		UpdateColumns(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
