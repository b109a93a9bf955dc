package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// ChannelService 频道与成员管理
type ChannelService struct {
	Deps
}

func NewChannelService(d Deps) *ChannelService {
	return &ChannelService{Deps: d}
}

type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ChannelType string `json:"channel_type"`
	IsPrivate   bool   `json:"is_private"`
	ProjectID   *int64 `json:"project_id"`
}

// UpdateChannelRequest 仅非 nil 字段参与更新
type UpdateChannelRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
	IsArchived  *bool   `json:"is_archived"`
}

type ChannelFilter struct {
	ChannelType string `form:"channel_type"`
	ProjectID   *int64 `form:"project_id"`
	IsPrivate   *bool  `form:"is_private"`
	IsArchived  *bool  `form:"is_archived"`
	SortBy      string `form:"sort_by"`
	SortOrder   string `form:"sort_order"`
}

type ChannelDTO struct {
	models.Channel
	MemberCount int64 `json:"member_count"`
}

type MemberDTO struct {
	models.ChatMember
	DisplayName string `json:"display_name,omitempty"`
}

// BulkFailure 批量添加中失败的单项
type BulkFailure struct {
	EmployeeID int64  `json:"employee_id"`
	Error      string `json:"error"`
}

type BulkResult struct {
	Successful     []int64       `json:"successful"`
	Failed         []BulkFailure `json:"failed"`
	TotalProcessed int           `json:"total_processed"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
}

type ChannelStats struct {
	ChannelID                int64  `json:"channel_id"`
	TotalMessages            int64  `json:"total_messages"`
	TotalMembers             int64  `json:"total_members"`
	MessagesToday            int64  `json:"messages_today"`
	MostActiveMemberID       *int64 `json:"most_active_member_id"`
	MostActiveMemberMessages int64  `json:"most_active_member_messages"`
}

// CreateChannel 创建频道
// 实现逻辑：权限检查 -> 参数校验 -> 事务内检查同名、创建频道、创建者加入为 admin -> 发出 ChannelCreated
func (s *ChannelService) CreateChannel(ctx context.Context, req *CreateChannelRequest, creator int64) (*ChannelDTO, error) {
	res := authz.Resource{Kind: "project"}
	if req.ProjectID != nil {
		res.ID = *req.ProjectID
	}
	if err := s.authorize(ctx, creator, authz.ActionCreateChannel, res); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if err := validateText("name", name, 1, maxNameLen); err != nil {
		return nil, err
	}
	if err := validateText("description", req.Description, 0, maxDescriptionLen); err != nil {
		return nil, err
	}
	channelType := req.ChannelType
	if channelType == "" {
		channelType = models.ChannelTypeGeneral
	}
	if !models.ValidChannelType(channelType) {
		return nil, validationErr("invalid channel type %q", channelType)
	}

	now := s.now()
	ch := &models.Channel{
		ID:          s.IDs.Generate(),
		Name:        name,
		Description: req.Description,
		ChannelType: channelType,
		IsPrivate:   req.IsPrivate,
		ProjectID:   req.ProjectID,
		CreatedBy:   creator,
		CreatedAt:   now,
		UpdatedAt:   now,
		Active:      true,
	}
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		taken, err := tx.ChannelNameTaken(ctx, ch.ProjectID, ch.ChannelType, ch.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return validationErr("channel name %q already exists", ch.Name)
		}
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return nameErr(err, ch.Name)
		}
		return tx.CreateMember(ctx, &models.ChatMember{
			ID:         s.IDs.Generate(),
			ChannelID:  ch.ID,
			EmployeeID: creator,
			Role:       models.RoleAdmin,
			JoinedAt:   now,
			Active:     true,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log().InfoContext(ctx, "channel created", zap.Int64("channel_id", ch.ID), zap.String("name", ch.Name))
	s.publish(ctx, events.ChannelCreated{Base: events.NewBase(creator, ch.ID, now), Detail: *ch})
	return &ChannelDTO{Channel: *ch, MemberCount: 1}, nil
}

// GetChannel 私有频道只对活跃成员可见
func (s *ChannelService) GetChannel(ctx context.Context, channelID, actor int64) (*ChannelDTO, error) {
	ch, err := s.Store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, storeErr(err, "channel")
	}
	if ch.IsPrivate {
		member, err := activeMember(ctx, s.Store, channelID, actor)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, notFoundErr("channel")
		}
	}
	counts, err := s.Store.CountMembers(ctx, []int64{ch.ID})
	if err != nil {
		return nil, err
	}
	return &ChannelDTO{Channel: *ch, MemberCount: counts[ch.ID]}, nil
}

// ListChannels 公开频道与 actor 所在的私有频道
func (s *ChannelService) ListChannels(ctx context.Context, filter ChannelFilter, page Pagination, actor int64) (*PageResult[ChannelDTO], error) {
	if filter.ChannelType != "" && !models.ValidChannelType(filter.ChannelType) {
		return nil, validationErr("invalid channel type %q", filter.ChannelType)
	}
	switch filter.SortBy {
	case "", "created_at", "name":
	default:
		return nil, validationErr("sort_by must be created_at or name")
	}
	desc, err := sortDesc(filter.SortOrder, true)
	if err != nil {
		return nil, err
	}
	page, p := page.normalize()

	channels, total, err := s.Store.ListChannels(ctx, repositories.ChannelQuery{
		ViewerID:    actor,
		ChannelType: filter.ChannelType,
		ProjectID:   filter.ProjectID,
		IsPrivate:   filter.IsPrivate,
		IsArchived:  filter.IsArchived,
		SortBy:      filter.SortBy,
		Desc:        desc,
		Page:        p,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	counts, err := s.Store.CountMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]ChannelDTO, 0, len(channels))
	for _, ch := range channels {
		items = append(items, ChannelDTO{Channel: ch, MemberCount: counts[ch.ID]})
	}
	return newPageResult(items, total, page), nil
}

// UpdateChannel 更新频道，changes 只包含实际变化的字段
func (s *ChannelService) UpdateChannel(ctx context.Context, channelID int64, req *UpdateChannelRequest, actor int64) (*ChannelDTO, error) {
	if err := s.authorize(ctx, actor, authz.ActionUpdateChannel, authz.Channel(channelID)); err != nil {
		return nil, err
	}

	var (
		ch      *models.Channel
		changes = map[string]any{}
	)
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		var err error
		ch, err = tx.LockChannel(ctx, channelID)
		if err != nil {
			return storeErr(err, "channel")
		}
		member, err := activeMember(ctx, tx, channelID, actor)
		if err != nil {
			return err
		}
		if member == nil || !member.CanModerate() {
			return permissionErr("only channel admins and moderators can update the channel")
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if err := validateText("name", name, 1, maxNameLen); err != nil {
				return err
			}
			if name != ch.Name {
				taken, err := tx.ChannelNameTaken(ctx, ch.ProjectID, ch.ChannelType, name, ch.ID)
				if err != nil {
					return err
				}
				if taken {
					return validationErr("channel name %q already exists", name)
				}
				changes["name"] = map[string]any{"old": ch.Name, "new": name}
				ch.Name = name
			}
		}
		if req.Description != nil {
			if err := validateText("description", *req.Description, 0, maxDescriptionLen); err != nil {
				return err
			}
			if *req.Description != ch.Description {
				changes["description"] = map[string]any{"old": ch.Description, "new": *req.Description}
				ch.Description = *req.Description
			}
		}
		if req.IsPrivate != nil && *req.IsPrivate != ch.IsPrivate {
			changes["is_private"] = map[string]any{"old": ch.IsPrivate, "new": *req.IsPrivate}
			ch.IsPrivate = *req.IsPrivate
		}
		if req.IsArchived != nil && *req.IsArchived != ch.IsArchived {
			changes["is_archived"] = map[string]any{"old": ch.IsArchived, "new": *req.IsArchived}
			ch.IsArchived = *req.IsArchived
		}
		if len(changes) == 0 {
			return nil
		}
		ch.UpdatedBy = actor
		ch.UpdatedAt = s.now()
		return nameErr(tx.SaveChannel(ctx, ch), ch.Name)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.publish(ctx, events.ChannelUpdated{Base: events.NewBase(actor, ch.ID, ch.UpdatedAt), Changes: changes})
	}
	counts, err := s.Store.CountMembers(ctx, []int64{ch.ID})
	if err != nil {
		return nil, err
	}
	return &ChannelDTO{Channel: *ch, MemberCount: counts[ch.ID]}, nil
}

// DeleteChannel 默认软删除（归档），hard=true 时级联物理删除
func (s *ChannelService) DeleteChannel(ctx context.Context, channelID, actor int64, hard bool) error {
	if err := s.authorize(ctx, actor, authz.ActionDeleteChannel, authz.Channel(channelID)); err != nil {
		return err
	}
	now := s.now()
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		ch, err := tx.LockChannel(ctx, channelID)
		if err != nil {
			return storeErr(err, "channel")
		}
		member, err := activeMember(ctx, tx, channelID, actor)
		if err != nil {
			return err
		}
		if member == nil || !member.IsAdmin() {
			return permissionErr("only channel admins can delete the channel")
		}
		if hard {
			return tx.DeleteChannelCascade(ctx, channelID)
		}
		ch.MarkDeleted()
		ch.UpdatedBy = actor
		ch.UpdatedAt = now
		return tx.SaveChannel(ctx, ch)
	})
	if err != nil {
		return err
	}

	s.log().InfoContext(ctx, "channel deleted", zap.Int64("channel_id", channelID), zap.Bool("hard", hard))
	s.publish(ctx, events.ChannelDeleted{Base: events.NewBase(actor, channelID, now), Hard: hard})
	return nil
}

// AddMember 添加成员；已失效的成员行会被重新激活
func (s *ChannelService) AddMember(ctx context.Context, channelID, employeeID int64, role string, actor int64) (*MemberDTO, error) {
	if err := s.authorize(ctx, actor, authz.ActionManageMembers, authz.Channel(channelID)); err != nil {
		return nil, err
	}
	return s.addMember(ctx, channelID, employeeID, role, actor)
}

func (s *ChannelService) addMember(ctx context.Context, channelID, employeeID int64, role string, actor int64) (*MemberDTO, error) {
	if role == "" {
		role = models.RoleMember
	}
	if !models.ValidRole(role) {
		return nil, validationErr("invalid role %q", role)
	}
	if employeeID <= 0 {
		return nil, validationErr("invalid employee id")
	}

	now := s.now()
	var (
		member      *models.ChatMember
		reactivated bool
	)
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		if _, err := tx.LockChannel(ctx, channelID); err != nil {
			return storeErr(err, "channel")
		}
		actorMember, err := activeMember(ctx, tx, channelID, actor)
		if err != nil {
			return err
		}
		if actorMember == nil || !actorMember.CanModerate() {
			return permissionErr("only channel admins and moderators can add members")
		}

		existing, err := tx.GetMember(ctx, channelID, employeeID)
		switch {
		case err == nil && existing.IsActive():
			return fmt.Errorf("%w: employee %d is already a member", ErrConflict, employeeID)
		case err == nil:
			existing.Role = role
			existing.JoinedAt = now
			existing.Active = true
			member, reactivated = existing, true
			return tx.SaveMember(ctx, existing)
		case errors.Is(err, repositories.ErrNotFound):
			member = &models.ChatMember{
				ID:         s.IDs.Generate(),
				ChannelID:  channelID,
				EmployeeID: employeeID,
				Role:       role,
				JoinedAt:   now,
				Active:     true,
			}
			return tx.CreateMember(ctx, member)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.MemberJoined{
		Base:        events.NewBase(actor, channelID, now),
		EmployeeID:  employeeID,
		Role:        role,
		Reactivated: reactivated,
	})
	return s.memberDTO(ctx, member), nil
}

// RemoveMember 移除成员；成员可以移除自己，不能移除唯一的 admin
func (s *ChannelService) RemoveMember(ctx context.Context, channelID, employeeID, actor int64) error {
	self := employeeID == actor
	if !self {
		if err := s.authorize(ctx, actor, authz.ActionManageMembers, authz.Channel(channelID)); err != nil {
			return err
		}
	}

	now := s.now()
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		if _, err := tx.LockChannel(ctx, channelID); err != nil {
			return storeErr(err, "channel")
		}
		if !self {
			actorMember, err := activeMember(ctx, tx, channelID, actor)
			if err != nil {
				return err
			}
			if actorMember == nil || !actorMember.CanModerate() {
				return permissionErr("only channel admins and moderators can remove members")
			}
		}
		target, err := activeMember(ctx, tx, channelID, employeeID)
		if err != nil {
			return err
		}
		if target == nil {
			return notFoundErr("member")
		}
		if target.Role == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, channelID); err != nil {
				return err
			}
		}
		target.MarkDeleted()
		return tx.SaveMember(ctx, target)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.MemberLeft{Base: events.NewBase(actor, channelID, now), EmployeeID: employeeID})
	return nil
}

// ChangeRole 修改角色，不能降级唯一的 admin
func (s *ChannelService) ChangeRole(ctx context.Context, channelID, employeeID int64, role string, actor int64) (*MemberDTO, error) {
	if err := s.authorize(ctx, actor, authz.ActionManageRoles, authz.Channel(channelID)); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, validationErr("invalid role %q", role)
	}

	now := s.now()
	var (
		target  *models.ChatMember
		oldRole string
	)
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		if _, err := tx.LockChannel(ctx, channelID); err != nil {
			return storeErr(err, "channel")
		}
		actorMember, err := activeMember(ctx, tx, channelID, actor)
		if err != nil {
			return err
		}
		if actorMember == nil || !actorMember.IsAdmin() {
			return permissionErr("only channel admins can change roles")
		}
		target, err = activeMember(ctx, tx, channelID, employeeID)
		if err != nil {
			return err
		}
		if target == nil {
			return notFoundErr("member")
		}
		oldRole = target.Role
		if oldRole == role {
			return nil
		}
		if oldRole == models.RoleAdmin {
			if err := ensureAnotherAdmin(ctx, tx, channelID); err != nil {
				return err
			}
		}
		target.Role = role
		return tx.SaveMember(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	if oldRole != role {
		s.publish(ctx, events.MemberRoleChanged{
			Base:       events.NewBase(actor, channelID, now),
			EmployeeID: employeeID,
			OldRole:    oldRole,
			NewRole:    role,
		})
	}
	return s.memberDTO(ctx, target), nil
}

// nameErr 并发创建或改名撞上唯一索引时返回与预检查相同的校验错误
func nameErr(err error, name string) error {
	if errors.Is(err, repositories.ErrDuplicate) {
		return validationErr("channel name %q already exists", name)
	}
	return err
}

// ensureAnotherAdmin 调用方须已通过 LockChannel 锁定频道
func ensureAnotherAdmin(ctx context.Context, tx repositories.Store, channelID int64) error {
	admins, err := tx.CountAdmins(ctx, channelID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return fmt.Errorf("%w: channel must keep at least one admin", ErrInvariant)
	}
	return nil
}

// BulkAddMembers 逐个添加，单个失败不影响其他成员
func (s *ChannelService) BulkAddMembers(ctx context.Context, channelID int64, employeeIDs []int64, role string, actor int64) (*BulkResult, error) {
	if len(employeeIDs) == 0 || len(employeeIDs) > maxBulkMembers {
		return nil, validationErr("employee_ids must contain between 1 and %d ids", maxBulkMembers)
	}
	if err := s.authorize(ctx, actor, authz.ActionManageMembers, authz.Channel(channelID)); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetChannel(ctx, channelID); err != nil {
		return nil, storeErr(err, "channel")
	}

	result := &BulkResult{Successful: []int64{}, Failed: []BulkFailure{}}
	for _, id := range employeeIDs {
		result.TotalProcessed++
		if _, err := s.addMember(ctx, channelID, id, role, actor); err != nil {
			result.Failed = append(result.Failed, BulkFailure{EmployeeID: id, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, id)
	}
	result.SuccessCount = len(result.Successful)
	result.FailureCount = len(result.Failed)

	if result.SuccessCount > 0 {
		s.publish(ctx, events.BulkMembersAdded{
			Base:        events.NewBase(actor, channelID, s.now()),
			Added:       result.Successful,
			FailedCount: result.FailureCount,
		})
	}
	return result, nil
}

// ListMembers 活跃成员，按加入时间排序
func (s *ChannelService) ListMembers(ctx context.Context, channelID int64, role string, actor int64) ([]MemberDTO, error) {
	if role != "" && !models.ValidRole(role) {
		return nil, validationErr("invalid role %q", role)
	}
	if _, _, err := s.readableChannel(ctx, s.Store, channelID, actor); err != nil {
		return nil, err
	}
	members, err := s.Store.ListMembers(ctx, channelID, role)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.EmployeeID)
	}
	names := s.displayNames(ctx, ids)

	out := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, MemberDTO{ChatMember: m, DisplayName: names[m.EmployeeID]})
	}
	return out, nil
}

// Statistics 频道统计，今日从 UTC 零点开始计算
func (s *ChannelService) Statistics(ctx context.Context, channelID, actor int64) (*ChannelStats, error) {
	if _, _, err := s.readableChannel(ctx, s.Store, channelID, actor); err != nil {
		return nil, err
	}
	midnight := s.now().Truncate(24 * time.Hour)
	stats, err := s.Store.MessageStats(ctx, channelID, midnight)
	if err != nil {
		return nil, err
	}
	counts, err := s.Store.CountMembers(ctx, []int64{channelID})
	if err != nil {
		return nil, err
	}
	return &ChannelStats{
		ChannelID:                channelID,
		TotalMessages:            stats.TotalMessages,
		TotalMembers:             counts[channelID],
		MessagesToday:            stats.MessagesSince,
		MostActiveMemberID:       stats.MostActiveMember,
		MostActiveMemberMessages: stats.MostActiveCount,
	}, nil
}

func (s *ChannelService) memberDTO(ctx context.Context, m *models.ChatMember) *MemberDTO {
	names := s.displayNames(ctx, []int64{m.EmployeeID})
	return &MemberDTO{ChatMember: *m, DisplayName: names[m.EmployeeID]}
}

// displayNames 名称解析失败只记录日志
func (d Deps) displayNames(ctx context.Context, ids []int64) map[int64]string {
	names, err := d.Store.DisplayNames(ctx, ids)
	if err != nil {
		d.log().WarnContext(ctx, "failed to resolve display names", zap.Error(err))
		return map[int64]string{}
	}
	return names
}
