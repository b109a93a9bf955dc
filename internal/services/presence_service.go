package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// PresenceService 在线状态与输入提示
type PresenceService struct {
	Deps
	window time.Duration
}

func NewPresenceService(d Deps, window time.Duration) *PresenceService {
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &PresenceService{Deps: d, window: window}
}

// StatusDTO 带派生字段 is_online 的状态
type StatusDTO struct {
	models.OnlineStatus
	IsOnline bool `json:"is_online"`
}

// SetStatus 更新状态并刷新 last_seen；仅在状态枚举变化时发事件，首次写入视为从 offline 变化
func (s *PresenceService) SetStatus(ctx context.Context, userID int64, status, custom string) (*StatusDTO, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidStatus(status) {
		return nil, validationErr("invalid status %q", status)
	}
	if err := validateText("custom_status", custom, 0, maxCustomStatus); err != nil {
		return nil, err
	}

	now := s.now()
	old := models.StatusOffline
	var row *models.OnlineStatus
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		prev, err := tx.GetStatus(ctx, userID)
		switch {
		case err == nil:
			old = prev.Status
		case !errors.Is(err, repositories.ErrNotFound):
			return err
		}
		row = &models.OnlineStatus{
			EmployeeID:   userID,
			Status:       status,
			CustomStatus: custom,
			LastSeen:     now,
			UpdatedAt:    now,
		}
		return tx.SaveStatus(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	if old != status {
		s.publish(ctx, events.OnlineStatusChanged{
			Base:         events.NewBase(userID, 0, now),
			OldStatus:    old,
			NewStatus:    status,
			CustomStatus: custom,
		})
	}
	return s.dto(row, now), nil
}

// TouchLastSeen 心跳：只更新 last_seen，失败仅记录日志
func (s *PresenceService) TouchLastSeen(ctx context.Context, userID int64) {
	if err := s.Store.TouchLastSeen(ctx, userID, s.now()); err != nil {
		s.log().WarnContext(ctx, "failed to update last seen",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// GetStatus 没有记录时返回合成的 offline 状态
func (s *PresenceService) GetStatus(ctx context.Context, userID int64) (*StatusDTO, error) {
	now := s.now()
	row, err := s.Store.GetStatus(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &StatusDTO{OnlineStatus: models.OnlineStatus{EmployeeID: userID, Status: models.StatusOffline}}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.dto(row, now), nil
}

// ListOnline 返回 window 内活跃过的用户，window <= 0 时使用默认窗口
func (s *PresenceService) ListOnline(ctx context.Context, window time.Duration, excludeOffline bool) ([]StatusDTO, error) {
	if window <= 0 {
		window = s.window
	}
	now := s.now()
	rows, err := s.Store.ListOnline(ctx, now.Add(-window), excludeOffline)
	if err != nil {
		return nil, err
	}
	out := make([]StatusDTO, 0, len(rows))
	for i := range rows {
		out = append(out, StatusDTO{OnlineStatus: rows[i], IsOnline: rows[i].IsOnline(now, window)})
	}
	return out, nil
}

// Typing 广播输入状态；调用方须已校验频道成员身份
func (s *PresenceService) Typing(ctx context.Context, channelID, userID int64, typing bool) {
	s.publish(ctx, events.UserTyping{Base: events.NewBase(userID, channelID, s.now()), IsTyping: typing})
}

func (s *PresenceService) dto(row *models.OnlineStatus, now time.Time) *StatusDTO {
	return &StatusDTO{OnlineStatus: *row, IsOnline: row.IsOnline(now, s.window)}
}
