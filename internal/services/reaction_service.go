package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// ReactionService 表情回应；同一 (message, employee, emoji) 至多一条活跃记录
type ReactionService struct {
	Deps
}

func NewReactionService(d Deps) *ReactionService {
	return &ReactionService{Deps: d}
}

// AddReaction 幂等：已存在的活跃回应原样返回且不发事件，失效的回应被重新激活
func (s *ReactionService) AddReaction(ctx context.Context, messageID int64, emoji string, actor int64) (*models.MessageReaction, error) {
	emoji = strings.TrimSpace(emoji)
	if err := validateText("emoji", emoji, 1, maxEmojiLen); err != nil {
		return nil, err
	}

	msg, err := s.Store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message")
	}
	if _, _, err := s.readableChannel(ctx, s.Store, msg.ChannelID, actor); err != nil {
		return nil, err
	}

	now := s.now()
	existing, err := s.Store.GetReaction(ctx, messageID, actor, emoji)
	switch {
	case err == nil && existing.IsActive():
		return existing, nil
	case err == nil:
		existing.Active = true
		existing.CreatedAt = now
		if err := s.Store.SaveReaction(ctx, existing); err != nil {
			return nil, err
		}
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	default:
		existing = &models.MessageReaction{
			ID:         s.IDs.Generate(),
			MessageID:  messageID,
			EmployeeID: actor,
			Emoji:      emoji,
			CreatedAt:  now,
			Active:     true,
		}
		if err := s.Store.CreateReaction(ctx, existing); err != nil {
			// 并发插入撞上唯一索引时返回对方写入的记录
			if winner, getErr := s.Store.GetReaction(ctx, messageID, actor, emoji); getErr == nil && winner.IsActive() {
				return winner, nil
			}
			return nil, err
		}
	}

	s.publish(ctx, events.ReactionAdded{
		Base:      events.NewBase(actor, msg.ChannelID, now),
		MessageID: messageID,
		Emoji:     emoji,
	})
	return existing, nil
}

// RemoveReaction 没有活跃回应时返回 false, nil
func (s *ReactionService) RemoveReaction(ctx context.Context, messageID int64, emoji string, actor int64) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	var channelID int64
	removed := false
	err := s.Store.Tx(ctx, func(tx repositories.Store) error {
		r, err := tx.GetReaction(ctx, messageID, actor, emoji)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			return err
		}
		if !r.IsActive() {
			return nil
		}
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return storeErr(err, "message")
		}
		channelID = msg.ChannelID
		r.MarkDeleted()
		removed = true
		return tx.SaveReaction(ctx, r)
	})
	if err != nil || !removed {
		return false, err
	}

	s.publish(ctx, events.ReactionRemoved{
		Base:      events.NewBase(actor, channelID, s.now()),
		MessageID: messageID,
		Emoji:     emoji,
	})
	return true, nil
}
