package repositories

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

func (s *GormStore) GetStatus(ctx context.Context, employeeID int64) (*models.OnlineStatus, error) {
	var st models.OnlineStatus
	if err := s.conn(ctx).First(&st, "employee_id = ?", employeeID).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

// SaveStatus upsert 状态行
func (s *GormStore) SaveStatus(ctx context.Context, st *models.OnlineStatus) error {
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "custom_status", "last_seen", "updated_at"}),
	}).Create(st).Error
}

// TouchLastSeen 只刷新 last_seen，不存在时创建 online 行
func (s *GormStore) TouchLastSeen(ctx context.Context, employeeID int64, at time.Time) error {
	st := models.OnlineStatus{
		EmployeeID: employeeID,
		Status:     models.StatusOnline,
		LastSeen:   at,
		UpdatedAt:  at,
	}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
	}).Create(&st).Error
}

// ListOnline last_seen 在 since 之后的用户，最近活跃的在前
func (s *GormStore) ListOnline(ctx context.Context, since time.Time, excludeOffline bool) ([]models.OnlineStatus, error) {
	query := s.conn(ctx).Where("last_seen >= ?", since)
	if excludeOffline {
		query = query.Where("status <> ?", models.StatusOffline)
	}
	var rows []models.OnlineStatus
	err := query.Order("last_seen DESC").Order("employee_id ASC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(p).Error
}

// DisplayNames 批量解析显示名，未知用户不出现在结果中
func (s *GormStore) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []models.Profile
	if err := s.conn(ctx).Where("employee_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.EmployeeID] = p.DisplayName
	}
	return out, nil
}

func (s *GormStore) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.conn(ctx).Create(entry).Error
}
