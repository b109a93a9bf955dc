package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
)

// InboxKey is the Redis list holding a user's pending notifications.
func InboxKey(userID int64) string {
	return "chat:inbox:" + strconv.FormatInt(userID, 10)
}

// Notification is one entry of a user's inbox.
type Notification struct {
	Kind      Kind      `json:"kind"`
	ActorID   int64     `json:"actor_id"`
	ChannelID int64     `json:"channel_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	At        time.Time `json:"at"`
}

// NotificationListener pushes mention, direct message and membership
// notices into per-user Redis lists capped at maxEntries.
type NotificationListener struct {
	rdb        redis.Cmdable
	maxEntries int64
	router     *Router
}

func NewNotificationListener(rdb redis.Cmdable, maxEntries int64) *NotificationListener {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	l := &NotificationListener{rdb: rdb, maxEntries: maxEntries}
	l.router = NewRouter().
		On(KindMessageSent, Typed(l.onMessageSent)).
		On(KindDirectMessageSent, Typed(l.onDirectMessage)).
		On(KindMemberJoined, Typed(l.onMemberJoined)).
		On(KindMemberRoleChanged, Typed(l.onRoleChanged)).
		Ignore(
			KindChannelCreated, KindChannelUpdated, KindChannelDeleted,
			KindMemberLeft, KindBulkMembersAdded,
			KindMessageUpdated, KindMessageDeleted, KindThreadStarted,
			KindReactionAdded, KindReactionRemoved,
			KindDirectMessageRead, KindOnlineStatusChanged, KindUserTyping,
		)
	return l
}

// Missing lists event kinds with no declared mapping.
func (l *NotificationListener) Missing() []Kind {
	return l.router.Missing()
}

func (l *NotificationListener) Name() string { return "notification" }

func (l *NotificationListener) Handle(ctx context.Context, ev Event) error {
	return l.router.Route(ctx, ev)
}

func (l *NotificationListener) onMessageSent(ctx context.Context, ev MessageSent) error {
	for _, uid := range ev.Message.MentionedUsers {
		if uid == ev.ActorID {
			continue
		}
		n := Notification{
			Kind: ev.Kind(), ActorID: ev.ActorID, ChannelID: ev.ChannelID,
			MessageID: ev.Message.ID, Preview: preview(ev.Message.Content), At: ev.At,
		}
		if err := l.push(ctx, uid, n); err != nil {
			return err
		}
	}
	return nil
}

func (l *NotificationListener) onDirectMessage(ctx context.Context, ev DirectMessageSent) error {
	return l.push(ctx, ev.Message.RecipientID, Notification{
		Kind: ev.Kind(), ActorID: ev.ActorID, MessageID: ev.Message.ID,
		Preview: preview(ev.Message.Content), At: ev.At,
	})
}

func (l *NotificationListener) onMemberJoined(ctx context.Context, ev MemberJoined) error {
	if ev.EmployeeID == ev.ActorID {
		return nil
	}
	return l.push(ctx, ev.EmployeeID, Notification{Kind: ev.Kind(), ActorID: ev.ActorID, ChannelID: ev.ChannelID, At: ev.At})
}

func (l *NotificationListener) onRoleChanged(ctx context.Context, ev MemberRoleChanged) error {
	return l.push(ctx, ev.EmployeeID, Notification{
		Kind: ev.Kind(), ActorID: ev.ActorID, ChannelID: ev.ChannelID, Preview: ev.NewRole, At: ev.At,
	})
}

func (l *NotificationListener) push(ctx context.Context, userID int64, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := InboxKey(userID)
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, l.maxEntries-1)
		return nil
	})
	return err
}

func preview(s string) string {
	const limit = 120
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// AuditRecord is what an AuditSink persists.
type AuditRecord struct {
	EventType  string
	ActorID    int64
	ChannelID  int64
	Payload    []byte
	OccurredAt time.Time
}

// AuditSink stores audit records.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditListener records every state-changing event. Typing and presence
// heartbeats are not audited.
type AuditListener struct {
	sink   AuditSink
	router *Router
}

func NewAuditListener(sink AuditSink) *AuditListener {
	l := &AuditListener{sink: sink, router: NewRouter()}
	for _, k := range AllKinds() {
		switch k {
		case KindUserTyping, KindOnlineStatusChanged:
			l.router.Ignore(k)
		default:
			l.router.On(k, l.record)
		}
	}
	return l
}

func (l *AuditListener) Name() string { return "audit" }

func (l *AuditListener) Handle(ctx context.Context, ev Event) error {
	return l.router.Route(ctx, ev)
}

func (l *AuditListener) record(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return l.sink.Record(ctx, AuditRecord{
		EventType:  string(ev.Kind()),
		ActorID:    ev.Actor(),
		ChannelID:  ev.Channel(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
	})
}

// IDGenerator issues primary keys.
type IDGenerator interface {
	Generate() int64
}

// StoreAuditSink writes to the chat_audit_logs table.
type StoreAuditSink struct {
	store repositories.AuditStore
	ids   IDGenerator
}

func NewStoreAuditSink(store repositories.AuditStore, ids IDGenerator) *StoreAuditSink {
	return &StoreAuditSink{store: store, ids: ids}
}

func (s *StoreAuditSink) Record(ctx context.Context, rec AuditRecord) error {
	entry := &models.AuditLog{
		ID:         s.ids.Generate(),
		EventType:  rec.EventType,
		ActorID:    rec.ActorID,
		Payload:    string(rec.Payload),
		OccurredAt: rec.OccurredAt,
	}
	if rec.ChannelID != 0 {
		ch := rec.ChannelID
		entry.ChannelID = &ch
	}
	return s.store.CreateAuditLog(ctx, entry)
}

// MongoAuditSink writes audit documents to a MongoDB collection.
type MongoAuditSink struct {
	coll *mongo.Collection
}

func NewMongoAuditSink(coll *mongo.Collection) *MongoAuditSink {
	return &MongoAuditSink{coll: coll}
}

func (s *MongoAuditSink) Record(ctx context.Context, rec AuditRecord) error {
	var payload bson.M
	if err := bson.UnmarshalExtJSON(rec.Payload, false, &payload); err != nil {
		return fmt.Errorf("decode audit payload: %w", err)
	}
	doc := bson.D{
		{Key: "event_type", Value: rec.EventType},
		{Key: "actor_id", Value: rec.ActorID},
		{Key: "channel_id", Value: rec.ChannelID},
		{Key: "payload", Value: payload},
		{Key: "occurred_at", Value: rec.OccurredAt},
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

// Producer is the subset of the Kafka producer the analytics listener needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) (int32, int64, error)
}

// AnalyticsRecord is the JSON value written to the analytics topic.
type AnalyticsRecord struct {
	Event      Kind           `json:"event"`
	ActorID    int64          `json:"actor_id"`
	ChannelID  int64          `json:"channel_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AnalyticsListener streams engagement events to Kafka keyed by channel.
type AnalyticsListener struct {
	producer Producer
	topic    string
	router   *Router
}

func NewAnalyticsListener(producer Producer, topic string) *AnalyticsListener {
	l := &AnalyticsListener{producer: producer, topic: topic}
	l.router = NewRouter().
		On(KindMessageSent, Typed(func(ctx context.Context, ev MessageSent) error {
			return l.emit(ctx, ev, map[string]any{
				"message_type": ev.Message.MessageType,
				"is_reply":     ev.Message.ParentMessageID != nil,
				"mentions":     len(ev.Message.MentionedUsers),
				"length":       len([]rune(ev.Message.Content)),
			})
		})).
		On(KindThreadStarted, Typed(func(ctx context.Context, ev ThreadStarted) error {
			return l.emit(ctx, ev, map[string]any{"parent_message_id": ev.ParentMessageID})
		})).
		On(KindReactionAdded, Typed(func(ctx context.Context, ev ReactionAdded) error {
			return l.emit(ctx, ev, map[string]any{"emoji": ev.Emoji, "message_id": ev.MessageID})
		})).
		On(KindMemberJoined, Typed(func(ctx context.Context, ev MemberJoined) error {
			return l.emit(ctx, ev, map[string]any{"employee_id": ev.EmployeeID, "role": ev.Role})
		})).
		On(KindMemberLeft, Typed(func(ctx context.Context, ev MemberLeft) error {
			return l.emit(ctx, ev, map[string]any{"employee_id": ev.EmployeeID})
		})).
		On(KindDirectMessageSent, Typed(func(ctx context.Context, ev DirectMessageSent) error {
			return l.emit(ctx, ev, map[string]any{"recipient_id": ev.Message.RecipientID})
		})).
		On(KindChannelCreated, Typed(func(ctx context.Context, ev ChannelCreated) error {
			return l.emit(ctx, ev, map[string]any{"channel_type": ev.Detail.ChannelType})
		})).
		Ignore(
			KindChannelUpdated, KindChannelDeleted,
			KindMemberRoleChanged, KindBulkMembersAdded,
			KindMessageUpdated, KindMessageDeleted, KindReactionRemoved,
			KindDirectMessageRead, KindOnlineStatusChanged, KindUserTyping,
		)
	return l
}

func (l *AnalyticsListener) Name() string { return "analytics" }

// Missing lists event kinds with no declared mapping.
func (l *AnalyticsListener) Missing() []Kind {
	return l.router.Missing()
}

func (l *AnalyticsListener) Handle(ctx context.Context, ev Event) error {
	return l.router.Route(ctx, ev)
}

func (l *AnalyticsListener) emit(ctx context.Context, ev Event, attrs map[string]any) error {
	value, err := json.Marshal(AnalyticsRecord{
		Event:      ev.Kind(),
		ActorID:    ev.Actor(),
		ChannelID:  ev.Channel(),
		OccurredAt: ev.OccurredAt(),
		Attributes: attrs,
	})
	if err != nil {
		return err
	}
	key := strconv.FormatInt(ev.Channel(), 10)
	if ev.Channel() == 0 {
		key = strconv.FormatInt(ev.Actor(), 10)
	}
	_, _, err = l.producer.Produce(ctx, l.topic, []byte(key), value)
	return err
}
