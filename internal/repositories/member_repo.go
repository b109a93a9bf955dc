package repositories

import (
	"context"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// GetMember 返回成员行（包括已失效的行，便于重新激活）
func (s *GormStore) GetMember(ctx context.Context, channelID, employeeID int64) (*models.ChatMember, error) {
	var m models.ChatMember
	err := s.conn(ctx).Where("channel_id = ? AND employee_id = ?", channelID, employeeID).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *GormStore) CreateMember(ctx context.Context, m *models.ChatMember) error {
	return s.conn(ctx).Create(m).Error
}

func (s *GormStore) SaveMember(ctx context.Context, m *models.ChatMember) error {
	return s.conn(ctx).Save(m).Error
}

// CountAdmins 活跃管理员数量
func (s *GormStore) CountAdmins(ctx context.Context, channelID int64) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.ChatMember{}).Scopes(active).
		Where("channel_id = ? AND role = ?", channelID, models.RoleAdmin).
		Count(&count).Error
	return count, err
}

// CountMembers 批量统计活跃成员数
func (s *GormStore) CountMembers(ctx context.Context, channelIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChannelID int64
		Total     int64
	}
	err := s.conn(ctx).Model(&models.ChatMember{}).Scopes(active).
		Select("channel_id, COUNT(*) AS total").
		Where("channel_id IN ?", channelIDs).
		Group("channel_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ChannelID] = r.Total
	}
	return out, nil
}

// ListMembers 按加入时间排序的活跃成员
func (s *GormStore) ListMembers(ctx context.Context, channelID int64, role string) ([]models.ChatMember, error) {
	q := s.conn(ctx).Scopes(active).Where("channel_id = ?", channelID)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var members []models.ChatMember
	err := q.Order("joined_at ASC").Order("id ASC").Find(&members).Error
	return members, err
}

// MemberChannelIDs 用户活跃加入且未删除的频道
func (s *GormStore) MemberChannelIDs(ctx context.Context, employeeID int64) ([]int64, error) {
	db := s.conn(ctx)
	liveChannels := db.Model(&models.Channel{}).Select("id").Scopes(active)
	var ids []int64
	err := db.Model(&models.ChatMember{}).Scopes(active).
		Where("employee_id = ?", employeeID).
		Where("channel_id IN (?)", liveChannels).
		Order("channel_id").
		Pluck("channel_id", &ids).Error
	return ids, err
}
