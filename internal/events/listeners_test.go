package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/Gopher0727/ProjectChat/internal/repositories/repotest"
	"github.com/Gopher0727/ProjectChat/utils/snowflake"
)

var at = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestListenersCoverEveryKind(t *testing.T) {
	_, rdb := newRedis(t)
	assert.Empty(t, NewNotificationListener(rdb, 0).Missing())
	assert.Empty(t, NewAnalyticsListener(&fakeProducer{}, "chat.analytics").Missing())
	assert.Empty(t, NewAuditListener(&memorySink{}).router.Missing())
}

func TestNotificationListener_Mentions(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewNotificationListener(rdb, 2)

	ev := MessageSent{
		Base:    NewBase(1, 10, at),
		Message: MessageSnapshot{ID: 100, Content: "hey @2 @3", MentionedUsers: []int64{1, 2, 3}},
	}
	require.NoError(t, l.Handle(context.Background(), ev))

	assert.False(t, mr.Exists(InboxKey(1)), "author is not notified about their own mention")
	items, err := mr.List(InboxKey(2))
	require.NoError(t, err)
	require.Len(t, items, 1)

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(items[0]), &n))
	assert.Equal(t, KindMessageSent, n.Kind)
	assert.Equal(t, int64(100), n.MessageID)
	assert.Equal(t, "hey @2 @3", n.Preview)
}

func TestNotificationListener_InboxIsCapped(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewNotificationListener(rdb, 2)

	for i := range 5 {
		ev := DirectMessageSent{Base: NewBase(1, 0, at), Message: DirectSnapshot{ID: int64(i), RecipientID: 9, Content: "x"}}
		require.NoError(t, l.Handle(context.Background(), ev))
	}
	items, err := mr.List(InboxKey(9))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	var newest Notification
	require.NoError(t, json.Unmarshal([]byte(items[0]), &newest))
	assert.Equal(t, int64(4), newest.MessageID)
}

func TestNotificationListener_IgnoresOtherKinds(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewNotificationListener(rdb, 10)
	require.NoError(t, l.Handle(context.Background(), ReactionAdded{Base: NewBase(1, 1, at)}))
	require.NoError(t, l.Handle(context.Background(), MemberJoined{Base: NewBase(5, 1, at), EmployeeID: 5}))
	assert.Empty(t, mr.Keys())
}

func TestNotificationListener_RedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	l := NewNotificationListener(rdb, 10)
	err := l.Handle(context.Background(), MemberRoleChanged{Base: NewBase(1, 1, at), EmployeeID: 2, NewRole: "admin"})
	assert.Error(t, err)
}

type memorySink struct {
	mu      sync.Mutex
	records []AuditRecord
}

func (m *memorySink) Record(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func TestAuditListener(t *testing.T) {
	sink := &memorySink{}
	l := NewAuditListener(sink)
	assert.Empty(t, l.router.Missing())

	require.NoError(t, l.Handle(context.Background(), MemberRoleChanged{Base: NewBase(1, 7, at), EmployeeID: 2, OldRole: "member", NewRole: "admin"}))
	require.NoError(t, l.Handle(context.Background(), UserTyping{Base: NewBase(1, 7, at), IsTyping: true}))

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, string(KindMemberRoleChanged), rec.EventType)
	assert.Equal(t, int64(7), rec.ChannelID)
	assert.JSONEq(t, `{"actor_id":1,"channel_id":7,"occurred_at":"2026-06-01T08:00:00Z","employee_id":2,"old_role":"member","new_role":"admin"}`, string(rec.Payload))
}

func TestStoreAuditSink(t *testing.T) {
	db := repotest.OpenDB(t)
	store := repotest.NewStoreFromDB(db)
	sink := NewStoreAuditSink(store, snowflake.MustNode(1))

	require.NoError(t, sink.Record(context.Background(), AuditRecord{
		EventType: "channel_deleted", ActorID: 3, ChannelID: 4, Payload: []byte(`{}`), OccurredAt: at,
	}))
	require.NoError(t, sink.Record(context.Background(), AuditRecord{
		EventType: "direct_message_sent", ActorID: 3, Payload: []byte(`{}`), OccurredAt: at,
	}))

	var rows []struct {
		EventType string
		ChannelID *int64
	}
	require.NoError(t, db.Table("chat_audit_logs").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ChannelID)
	assert.Equal(t, int64(4), *rows[0].ChannelID)
	assert.Nil(t, rows[1].ChannelID)
}

func TestMongoAuditSink(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		sink := NewMongoAuditSink(mt.Coll)
		err := sink.Record(context.Background(), AuditRecord{
			EventType: "message_deleted", ActorID: 1, ChannelID: 2, Payload: []byte(`{"message_id":5}`), OccurredAt: at,
		})
		assert.NoError(t, err)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		sink := NewMongoAuditSink(mt.Coll)
		err := sink.Record(context.Background(), AuditRecord{EventType: "x", Payload: []byte(`{}`), OccurredAt: at})
		assert.Error(t, err)
	})

	mt.Run("bad payload", func(mt *mtest.T) {
		sink := NewMongoAuditSink(mt.Coll)
		err := sink.Record(context.Background(), AuditRecord{EventType: "x", Payload: []byte(`not json`)})
		assert.Error(t, err)
	})
}

type fakeProducer struct {
	mu   sync.Mutex
	keys []string
	vals [][]byte
	err  error
}

func (p *fakeProducer) Produce(_ context.Context, topic string, key, value []byte) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, 0, p.err
	}
	p.keys = append(p.keys, string(key))
	p.vals = append(p.vals, value)
	return 0, int64(len(p.vals)), nil
}

func TestAnalyticsListener(t *testing.T) {
	p := &fakeProducer{}
	l := NewAnalyticsListener(p, "chat.analytics")

	parent := int64(1)
	require.NoError(t, l.Handle(context.Background(), MessageSent{
		Base:    NewBase(3, 42, at),
		Message: MessageSnapshot{MessageType: "text", Content: "héllo", ParentMessageID: &parent},
	}))
	require.NoError(t, l.Handle(context.Background(), DirectMessageSent{
		Base: NewBase(3, 0, at), Message: DirectSnapshot{RecipientID: 4},
	}))
	require.NoError(t, l.Handle(context.Background(), MessageUpdated{Base: NewBase(3, 42, at)}))

	require.Len(t, p.vals, 2)
	assert.Equal(t, []string{"42", "3"}, p.keys)

	var rec AnalyticsRecord
	require.NoError(t, json.Unmarshal(p.vals[0], &rec))
	assert.Equal(t, KindMessageSent, rec.Event)
	assert.Equal(t, true, rec.Attributes["is_reply"])
	assert.EqualValues(t, 5, rec.Attributes["length"])

	p.err = errors.New("broker down")
	assert.Error(t, l.Handle(context.Background(), ReactionAdded{Base: NewBase(3, 42, at), Emoji: "👍"}))
}
