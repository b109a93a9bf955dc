package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
)

// DirectMessageService 一对一私信
type DirectMessageService struct {
	Deps
}

func NewDirectMessageService(d Deps) *DirectMessageService {
	return &DirectMessageService{Deps: d}
}

type SendDirectRequest struct {
	RecipientID int64               `json:"recipient_id"`
	Content     string              `json:"content"`
	MessageType string              `json:"message_type"`
	Attachments []models.Attachment `json:"attachments"`
}

type DirectMessageDTO struct {
	events.DirectSnapshot
	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (s *DirectMessageService) Send(ctx context.Context, req *SendDirectRequest, sender int64) (*DirectMessageDTO, error) {
	if err := s.authorize(ctx, sender, authz.ActionDirectMessage, authz.User(req.RecipientID)); err != nil {
		return nil, err
	}
	if req.RecipientID == 0 {
		return nil, validationErr("recipient_id is required")
	}
	if req.RecipientID == sender {
		return nil, validationErr("cannot send a direct message to yourself")
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	msgType, err := validateMessageType(req.MessageType)
	if err != nil {
		return nil, err
	}

	dm := &models.DirectMessage{
		ID:          s.IDs.Generate(),
		SenderID:    sender,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		MessageType: msgType,
		CreatedAt:   s.now(),
	}
	if err := dm.SetAttachments(req.Attachments); err != nil {
		return nil, validationErr("invalid attachments")
	}
	if err := s.Store.CreateDirectMessage(ctx, dm); err != nil {
		return nil, err
	}

	dto, err := directDTO(dm, s.displayNames(ctx, []int64{sender}))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.DirectMessageSent{Base: events.NewBase(sender, 0, dm.CreatedAt), Message: dto.DirectSnapshot})
	return dto, nil
}

// ListConversation 双向会话，新消息在前
func (s *DirectMessageService) ListConversation(ctx context.Context, actor, other int64, page Pagination) (*PageResult[DirectMessageDTO], error) {
	if other == 0 || other == actor {
		return nil, validationErr("invalid conversation partner")
	}
	page, p := page.normalize()
	rows, total, err := s.Store.ListConversation(ctx, actor, other, p)
	if err != nil {
		return nil, err
	}

	names := s.displayNames(ctx, []int64{actor, other})
	items := make([]DirectMessageDTO, 0, len(rows))
	for i := range rows {
		dto, err := directDTO(&rows[i], names)
		if err != nil {
			s.log().WarnContext(ctx, "skipping malformed direct message row",
				zap.Int64("direct_message_id", rows[i].ID), zap.Error(err))
			continue
		}
		items = append(items, *dto)
	}
	return newPageResult(items, total, page), nil
}

// MarkRead 将 sender 发给 recipient 的未读私信标记为已读，返回条数
func (s *DirectMessageService) MarkRead(ctx context.Context, senderID, recipientID int64) (int64, error) {
	now := s.now()
	n, err := s.Store.MarkDirectRead(ctx, senderID, recipientID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, events.DirectMessageRead{
			Base:     events.NewBase(recipientID, 0, now),
			SenderID: senderID,
			Count:    n,
		})
	}
	return n, nil
}

func directDTO(dm *models.DirectMessage, names map[int64]string) (*DirectMessageDTO, error) {
	attachments, err := dm.AttachmentList()
	if err != nil {
		return nil, err
	}
	return &DirectMessageDTO{
		DirectSnapshot: events.DirectSnapshot{
			ID:          dm.ID,
			SenderID:    dm.SenderID,
			SenderName:  names[dm.SenderID],
			RecipientID: dm.RecipientID,
			Content:     dm.Content,
			MessageType: dm.MessageType,
			Attachments: attachments,
			CreatedAt:   dm.CreatedAt,
		},
		IsRead: dm.IsRead,
		ReadAt: dm.ReadAt,
	}, nil
}
