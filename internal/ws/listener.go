package ws

import (
	"context"

	"github.com/Gopher0727/ProjectChat/internal/events"
)

// Listener 把领域事件转换为推送帧。每种事件都必须显式处理或忽略。
type Listener struct {
	out    Deliverer
	router *events.Router
}

func NewListener(out Deliverer) *Listener {
	l := &Listener{out: out}
	l.router = events.NewRouter().
		On(events.KindMessageSent, events.Typed(l.onMessageSent)).
		On(events.KindMessageUpdated, events.Typed(l.onMessageUpdated)).
		On(events.KindMessageDeleted, events.Typed(l.onMessageDeleted)).
		On(events.KindReactionAdded, events.Typed(l.onReactionAdded)).
		On(events.KindReactionRemoved, events.Typed(l.onReactionRemoved)).
		On(events.KindMemberJoined, events.Typed(l.onMemberJoined)).
		On(events.KindMemberLeft, events.Typed(l.onMemberLeft)).
		On(events.KindChannelDeleted, events.Typed(l.onChannelDeleted)).
		On(events.KindUserTyping, events.Typed(l.onTyping)).
		On(events.KindOnlineStatusChanged, events.Typed(l.onStatusChanged)).
		On(events.KindDirectMessageSent, events.Typed(l.onDirectMessage)).
		// 新频道还没有连接；线程回复已作为 new_message 推送；批量添加逐个发出 MemberJoined
		Ignore(
			events.KindChannelCreated,
			events.KindChannelUpdated,
			events.KindMemberRoleChanged,
			events.KindBulkMembersAdded,
			events.KindThreadStarted,
			events.KindDirectMessageRead,
		)
	return l
}

func (l *Listener) Name() string { return "realtime" }

func (l *Listener) Handle(ctx context.Context, ev events.Event) error {
	return l.router.Route(ctx, ev)
}

// Missing lists event kinds with no declared mapping.
func (l *Listener) Missing() []events.Kind {
	return l.router.Missing()
}

func (l *Listener) toChannel(ev events.Event, typ string, data any, exclude int64) {
	l.out.Deliver(Delivery{
		Scope:   ScopeChannel,
		Target:  ev.Channel(),
		Exclude: exclude,
		Frame:   NewFrame(typ, ev.Channel(), ev.Actor(), data, ev.OccurredAt()),
	})
}

func (l *Listener) onMessageSent(_ context.Context, ev events.MessageSent) error {
	// 发送者通过 message_sent 回执拿到自己的消息
	l.toChannel(ev, FrameNewMessage, ev.Message, ev.ActorID)
	return nil
}

func (l *Listener) onMessageUpdated(_ context.Context, ev events.MessageUpdated) error {
	l.toChannel(ev, FrameMessageUpdated, map[string]any{"message_id": ev.MessageID, "changes": ev.Changes}, 0)
	return nil
}

func (l *Listener) onMessageDeleted(_ context.Context, ev events.MessageDeleted) error {
	l.toChannel(ev, FrameMessageDeleted, map[string]any{"message_id": ev.MessageID, "hard": ev.Hard}, 0)
	return nil
}

func (l *Listener) onReactionAdded(_ context.Context, ev events.ReactionAdded) error {
	l.toChannel(ev, FrameReactionAdded, map[string]any{"message_id": ev.MessageID, "emoji": ev.Emoji}, 0)
	return nil
}

func (l *Listener) onReactionRemoved(_ context.Context, ev events.ReactionRemoved) error {
	l.toChannel(ev, FrameReactionRemoved, map[string]any{"message_id": ev.MessageID, "emoji": ev.Emoji}, 0)
	return nil
}

func (l *Listener) onMemberJoined(_ context.Context, ev events.MemberJoined) error {
	l.toChannel(ev, FrameMemberAdded, map[string]any{"employee_id": ev.EmployeeID, "role": ev.Role}, 0)
	return nil
}

// onMemberLeft 通知频道后断开被移除成员的连接
func (l *Listener) onMemberLeft(_ context.Context, ev events.MemberLeft) error {
	l.out.Deliver(Delivery{
		Scope:  ScopeEvict,
		Target: ev.ChannelID,
		Evict:  ev.EmployeeID,
		Frame:  NewFrame(FrameMemberRemoved, ev.ChannelID, ev.ActorID, map[string]any{"employee_id": ev.EmployeeID}, ev.At),
	})
	return nil
}

func (l *Listener) onChannelDeleted(_ context.Context, ev events.ChannelDeleted) error {
	l.out.Deliver(Delivery{
		Scope:  ScopeEvict,
		Target: ev.ChannelID,
		Frame:  NewFrame(FrameChannelDeleted, ev.ChannelID, ev.ActorID, map[string]any{"hard": ev.Hard}, ev.At),
	})
	return nil
}

func (l *Listener) onTyping(_ context.Context, ev events.UserTyping) error {
	l.toChannel(ev, FrameTyping, map[string]any{"is_typing": ev.IsTyping}, ev.ActorID)
	return nil
}

func (l *Listener) onStatusChanged(_ context.Context, ev events.OnlineStatusChanged) error {
	l.out.Deliver(Delivery{
		Scope:   ScopeUserChannels,
		Target:  ev.ActorID,
		Exclude: ev.ActorID,
		Frame: NewFrame(FrameStatusChange, 0, ev.ActorID, map[string]any{
			"status":        ev.NewStatus,
			"custom_status": ev.CustomStatus,
		}, ev.At),
	})
	return nil
}

func (l *Listener) onDirectMessage(_ context.Context, ev events.DirectMessageSent) error {
	l.out.Deliver(Delivery{
		Scope:  ScopeUser,
		Target: ev.Message.RecipientID,
		Frame:  NewFrame(FrameDirectMessage, 0, ev.ActorID, ev.Message, ev.At),
	})
	return nil
}
