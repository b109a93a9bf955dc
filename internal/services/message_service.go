package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// MessageService 频道消息：发送、编辑、置顶、删除、列表与搜索
type MessageService struct {
	Deps
	editWindow time.Duration
}

func NewMessageService(d Deps, editWindow time.Duration) *MessageService {
	if editWindow <= 0 {
		editWindow = DefaultEditWindow
	}
	return &MessageService{Deps: d, editWindow: editWindow}
}

type SendMessageRequest struct {
	ChannelID       int64               `json:"-"`
	Content         string              `json:"content"`
	MessageType     string              `json:"message_type"`
	ParentMessageID *int64              `json:"parent_message_id"`
	MentionedUsers  []int64             `json:"mentioned_users"`
	Attachments     []models.Attachment `json:"attachments"`
}

type UpdateMessageRequest struct {
	Content  *string `json:"content"`
	IsPinned *bool   `json:"is_pinned"`
}

type MessageFilter struct {
	ParentMessageID *int64     `form:"parent_message_id"`
	MessageType     string     `form:"message_type"`
	SenderID        *int64     `form:"sender_id"`
	IsPinned        *bool      `form:"is_pinned"`
	DateFrom        *time.Time `form:"date_from" time_format:"2006-01-02T15:04:05Z07:00"`
	DateTo          *time.Time `form:"date_to" time_format:"2006-01-02T15:04:05Z07:00"`
	Search          string     `form:"search"`
	SortOrder       string     `form:"sort_order"`
}

type SearchRequest struct {
	Query        string     `json:"query"`
	ChannelIDs   []int64    `json:"channel_ids"`
	SenderIDs    []int64    `json:"sender_ids"`
	MessageTypes []string   `json:"message_types"`
	DateFrom     *time.Time `json:"date_from"`
	DateTo       *time.Time `json:"date_to"`
}

type MessageDTO struct {
	events.MessageSnapshot
	EditedAt  *time.Time               `json:"edited_at,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
	Reactions []models.MessageReaction `json:"reactions"`
}

// SendMessage 发送消息
// 实现逻辑：同一事务内写入消息、递增父消息 thread_count、递增频道计数并刷新 last_message_at
func (s *MessageService) SendMessage(ctx context.Context, req *SendMessageRequest, sender int64) (*MessageDTO, error) {
	if err := s.authorize(ctx, sender, authz.ActionSendMessage, authz.Channel(req.ChannelID)); err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	msgType, err := validateMessageType(req.MessageType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.ChatMessage{
		ID:              s.IDs.Generate(),
		ChannelID:       req.ChannelID,
		SenderID:        sender,
		Content:         req.Content,
		MessageType:     msgType,
		ParentMessageID: req.ParentMessageID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Active:          true,
	}
	mentions := dedupe(req.MentionedUsers)
	if err := msg.SetAttachments(req.Attachments); err != nil {
		return nil, validationErr("invalid attachments")
	}

	var threadCount int64
	err = s.Store.Tx(ctx, func(tx repositories.Store) error {
		ch, err := tx.GetChannel(ctx, req.ChannelID)
		if err != nil {
			return storeErr(err, "channel")
		}
		if ch.IsArchived {
			return notFoundErr("channel is archived")
		}
		member, err := activeMember(ctx, tx, ch.ID, sender)
		if err != nil {
			return err
		}
		if member == nil {
			return permissionErr("not a member of this channel")
		}
		if mentions, err = memberMentions(ctx, tx, ch.ID, mentions); err != nil {
			return err
		}
		if err := msg.SetMentions(mentions); err != nil {
			return validationErr("invalid mentioned_users")
		}

		if req.ParentMessageID != nil {
			parent, err := tx.GetMessage(ctx, *req.ParentMessageID)
			if errors.Is(err, repositories.ErrNotFound) {
				return validationErr("parent message not found")
			}
			if err != nil {
				return err
			}
			if parent.ChannelID != ch.ID {
				return validationErr("parent message belongs to a different channel")
			}
		}

		if err := tx.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if req.ParentMessageID != nil {
			if threadCount, err = tx.IncrementThreadCount(ctx, *req.ParentMessageID); err != nil {
				return err
			}
		}
		return tx.RecordChannelMessage(ctx, ch.ID, now)
	})
	if err != nil {
		return nil, err
	}

	names := s.displayNames(ctx, []int64{sender})
	dto, err := s.toDTO(msg, names, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.MessageSent{Base: events.NewBase(sender, msg.ChannelID, now), Message: dto.MessageSnapshot})
	if threadCount == 1 {
		s.publish(ctx, events.ThreadStarted{
			Base:            events.NewBase(sender, msg.ChannelID, now),
			ParentMessageID: *req.ParentMessageID,
			ReplyID:         msg.ID,
		})
	}
	return dto, nil
}

// memberMentions 只保留频道的活跃成员
func memberMentions(ctx context.Context, tx repositories.Store, channelID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	members, err := tx.ListMembers(ctx, channelID, "")
	if err != nil {
		return nil, err
	}
	active := make(map[int64]struct{}, len(members))
	for _, m := range members {
		active[m.EmployeeID] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := active[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// UpdateMessage 编辑内容（仅发送者，编辑窗口内）或置顶/取消置顶（moderator/admin）
func (s *MessageService) UpdateMessage(ctx context.Context, messageID int64, req *UpdateMessageRequest, actor int64) (*MessageDTO, error) {
	if req.Content == nil && req.IsPinned == nil {
		return nil, validationErr("nothing to update")
	}

	now := s.now()
	var (
		msg     *models.ChatMessage
		changes = map[string]any{}
	)
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		var err error
		msg, err = tx.GetMessage(ctx, messageID)
		if err != nil {
			return storeErr(err, "message")
		}
		if _, err := tx.GetChannel(ctx, msg.ChannelID); err != nil {
			return storeErr(err, "channel")
		}

		// 即使状态不变也要校验置顶权限
		if req.IsPinned != nil {
			member, err := activeMember(ctx, tx, msg.ChannelID, actor)
			if err != nil {
				return err
			}
			if member == nil || !member.CanModerate() {
				return permissionErr("only channel admins and moderators can pin messages")
			}
			if err := s.authorize(ctx, actor, authz.ActionPinMessage, authz.Message(messageID)); err != nil {
				return err
			}
		}

		if req.Content != nil {
			if msg.SenderID != actor {
				return permissionErr("only the sender can edit a message")
			}
			if err := validateContent(*req.Content); err != nil {
				return err
			}
			if now.Sub(msg.CreatedAt) > s.editWindow {
				return validationErr("message too old to edit")
			}
			if *req.Content != msg.Content {
				changes["content"] = map[string]any{"old": msg.Content, "new": *req.Content}
				msg.Content = *req.Content
				msg.IsEdited = true
				msg.EditedAt = &now
			}
		}
		if req.IsPinned != nil && *req.IsPinned != msg.IsPinned {
			changes["is_pinned"] = map[string]any{"old": msg.IsPinned, "new": *req.IsPinned}
			msg.IsPinned = *req.IsPinned
		}

		if len(changes) == 0 {
			return nil
		}
		msg.UpdatedAt = now
		return tx.SaveMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.publish(ctx, events.MessageUpdated{
			Base:      events.NewBase(actor, msg.ChannelID, now),
			MessageID: msg.ID,
			Changes:   changes,
		})
	}
	return s.loadDTO(ctx, msg)
}

// DeleteMessage 发送者或 moderator/admin 可软删除；物理删除需要 admin 与 delete_message 权限
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, actor int64, hard bool) error {
	now := s.now()
	var channelID int64
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return storeErr(err, "message")
		}
		channelID = msg.ChannelID
		member, err := activeMember(ctx, tx, msg.ChannelID, actor)
		if err != nil {
			return err
		}

		if hard {
			if member == nil || !member.IsAdmin() {
				return permissionErr("only channel admins can permanently delete messages")
			}
			if err := s.authorize(ctx, actor, authz.ActionDeleteMessage, authz.Message(messageID)); err != nil {
				return err
			}
			return tx.DeleteMessageCascade(ctx, messageID)
		}

		if msg.SenderID != actor && (member == nil || !member.CanModerate()) {
			return permissionErr("only the sender or a moderator can delete this message")
		}
		msg.MarkDeleted()
		msg.UpdatedAt = now
		return tx.SaveMessage(ctx, msg)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.MessageDeleted{Base: events.NewBase(actor, channelID, now), MessageID: messageID, Hard: hard})
	return nil
}

// ListMessages 默认只返回顶层消息，按创建时间倒序
func (s *MessageService) ListMessages(ctx context.Context, channelID int64, filter MessageFilter, page Pagination, actor int64) (*PageResult[MessageDTO], error) {
	if _, _, err := s.readableChannel(ctx, s.Store, channelID, actor); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionReadChannel, authz.Channel(channelID)); err != nil {
		return nil, err
	}
	if filter.MessageType != "" && !models.ValidMessageType(filter.MessageType) {
		return nil, validationErr("invalid message type %q", filter.MessageType)
	}
	if filter.Search != "" {
		if err := validateText("search", filter.Search, 1, maxSearchLen); err != nil {
			return nil, err
		}
	}
	desc, err := sortDesc(filter.SortOrder, true)
	if err != nil {
		return nil, err
	}
	page, p := page.normalize()

	q := repositories.MessageQuery{
		ChannelIDs:      []int64{channelID},
		ParentMessageID: filter.ParentMessageID,
		IsPinned:        filter.IsPinned,
		DateFrom:        filter.DateFrom,
		DateTo:          filter.DateTo,
		Search:          strings.TrimSpace(filter.Search),
		Desc:            desc,
		Page:            p,
	}
	if filter.MessageType != "" {
		q.MessageTypes = []string{filter.MessageType}
	}
	if filter.SenderID != nil {
		q.SenderIDs = []int64{*filter.SenderID}
	}
	return s.query(ctx, q, page)
}

// SearchMessages 在 actor 所在频道内做大小写不敏感的子串搜索
func (s *MessageService) SearchMessages(ctx context.Context, req *SearchRequest, page Pagination, actor int64) (*PageResult[MessageDTO], error) {
	query := strings.TrimSpace(req.Query)
	if err := validateText("query", query, 1, maxSearchLen); err != nil {
		return nil, err
	}
	for _, t := range req.MessageTypes {
		if !models.ValidMessageType(t) {
			return nil, validationErr("invalid message type %q", t)
		}
	}
	if err := s.authorize(ctx, actor, authz.ActionSearchMessages, authz.Resource{}); err != nil {
		return nil, err
	}
	page, p := page.normalize()

	readable, err := s.Store.MemberChannelIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	channelIDs := readable
	if len(req.ChannelIDs) > 0 {
		channelIDs = intersect(readable, req.ChannelIDs)
	}
	if len(channelIDs) == 0 {
		return newPageResult[MessageDTO](nil, 0, page), nil
	}

	return s.query(ctx, repositories.MessageQuery{
		ChannelIDs:   channelIDs,
		AnyDepth:     true,
		MessageTypes: req.MessageTypes,
		SenderIDs:    req.SenderIDs,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Search:       query,
		Desc:         true,
		Page:         p,
	}, page)
}

// query 加载消息、回应和发送者名称；JSON 列损坏的行被跳过并记录日志
func (s *MessageService) query(ctx context.Context, q repositories.MessageQuery, page Pagination) (*PageResult[MessageDTO], error) {
	messages, total, err := s.Store.ListMessages(ctx, q)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(messages))
	senders := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
		senders = append(senders, m.SenderID)
	}
	reactions, err := s.Store.ListReactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	byMessage := make(map[int64][]models.MessageReaction, len(ids))
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	names := s.displayNames(ctx, dedupe(senders))

	items := make([]MessageDTO, 0, len(messages))
	for i := range messages {
		dto, err := s.toDTO(&messages[i], names, byMessage[messages[i].ID])
		if err != nil {
			s.log().WarnContext(ctx, "skipping malformed message row",
				zap.Int64("message_id", messages[i].ID), zap.Error(err))
			continue
		}
		items = append(items, *dto)
	}
	return newPageResult(items, total, page), nil
}

func (s *MessageService) loadDTO(ctx context.Context, msg *models.ChatMessage) (*MessageDTO, error) {
	reactions, err := s.Store.ListReactions(ctx, []int64{msg.ID})
	if err != nil {
		return nil, err
	}
	return s.toDTO(msg, s.displayNames(ctx, []int64{msg.SenderID}), reactions)
}

func (s *MessageService) toDTO(msg *models.ChatMessage, names map[int64]string, reactions []models.MessageReaction) (*MessageDTO, error) {
	snap, err := Snapshot(msg, names[msg.SenderID])
	if err != nil {
		return nil, err
	}
	if reactions == nil {
		reactions = []models.MessageReaction{}
	}
	return &MessageDTO{
		MessageSnapshot: snap,
		EditedAt:        msg.EditedAt,
		UpdatedAt:       msg.UpdatedAt,
		Reactions:       reactions,
	}, nil
}

// Snapshot decodes the JSON columns of msg into its wire view.
func Snapshot(msg *models.ChatMessage, senderName string) (events.MessageSnapshot, error) {
	mentions, err := msg.Mentions()
	if err != nil {
		return events.MessageSnapshot{}, err
	}
	attachments, err := msg.AttachmentList()
	if err != nil {
		return events.MessageSnapshot{}, err
	}
	return events.MessageSnapshot{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		SenderID:        msg.SenderID,
		SenderName:      senderName,
		Content:         msg.Content,
		MessageType:     msg.MessageType,
		ParentMessageID: msg.ParentMessageID,
		ThreadCount:     msg.ThreadCount,
		MentionedUsers:  mentions,
		Attachments:     attachments,
		IsEdited:        msg.IsEdited,
		IsPinned:        msg.IsPinned,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func intersect(a, b []int64) []int64 {
	set := make(map[int64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []int64
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
