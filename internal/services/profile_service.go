package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/models"
)

// ProfileService 缓存 token 中的显示名，供消息列表填充 sender_name
type ProfileService struct {
	Deps
}

func NewProfileService(d Deps) *ProfileService {
	return &ProfileService{Deps: d}
}

// Sync 写入显示名；失败只记录日志，不影响请求
func (s *ProfileService) Sync(ctx context.Context, userID int64, displayName string) {
	displayName = strings.TrimSpace(displayName)
	if userID == 0 || displayName == "" {
		return
	}
	err := s.Store.UpsertProfile(ctx, &models.Profile{
		EmployeeID:  userID,
		DisplayName: displayName,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		s.log().WarnContext(ctx, "failed to sync profile", zap.Int64("user_id", userID), zap.Error(err))
	}
}
