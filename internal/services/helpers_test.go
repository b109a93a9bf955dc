package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/models"
	"github.com/Gopher0727/ProjectChat/internal/repositories"
	"github.com/Gopher0727/ProjectChat/internal/repositories/repotest"
	"github.com/Gopher0727/ProjectChat/internal/services"
	"github.com/Gopher0727/ProjectChat/utils/snowflake"
)

const (
	userA int64 = 1001
	userB int64 = 1002
	userC int64 = 1003
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// harness wires every service to one in-memory store, a recorder and a settable clock.
type harness struct {
	t     testing.TB
	ctx   context.Context
	store *repositories.GormStore
	rec   *events.Recorder

	mu     sync.Mutex
	now    time.Time
	denied map[authz.Action]bool
	asked  []authz.Action

	channels  *services.ChannelService
	messages  *services.MessageService
	reactions *services.ReactionService
	direct    *services.DirectMessageService
	presence  *services.PresenceService
	profiles  *services.ProfileService
}

func newHarness(t testing.TB) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  repotest.NewStore(t),
		rec:    &events.Recorder{},
		now:    baseTime,
		denied: map[authz.Action]bool{},
	}
	deps := services.Deps{
		Store:  h.store,
		Oracle: authz.OracleFunc(h.authorize),
		Events: h.rec,
		IDs:    snowflake.MustNode(1),
		Clock:  h.clock,
	}
	h.channels = services.NewChannelService(deps)
	h.messages = services.NewMessageService(deps, services.DefaultEditWindow)
	h.reactions = services.NewReactionService(deps)
	h.direct = services.NewDirectMessageService(deps)
	h.presence = services.NewPresenceService(deps, services.DefaultPresenceWindow)
	h.profiles = services.NewProfileService(deps)
	return h
}

func (h *harness) authorize(_ context.Context, _ int64, action authz.Action, _ authz.Resource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asked = append(h.asked, action)
	if h.denied[action] {
		return authz.ErrForbidden
	}
	return nil
}

func (h *harness) deny(a authz.Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.denied[a] = true
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) createChannel(name string, creator int64, private bool) *services.ChannelDTO {
	h.t.Helper()
	ch, err := h.channels.CreateChannel(h.ctx, &services.CreateChannelRequest{
		Name:        name,
		ChannelType: models.ChannelTypeTeam,
		IsPrivate:   private,
	}, creator)
	require.NoError(h.t, err)
	return ch
}

func (h *harness) addMember(channelID, employeeID int64, role string) {
	h.t.Helper()
	_, err := h.channels.AddMember(h.ctx, channelID, employeeID, role, userA)
	require.NoError(h.t, err)
}

func (h *harness) send(channelID, sender int64, content string, parent *int64) *services.MessageDTO {
	h.t.Helper()
	msg, err := h.messages.SendMessage(h.ctx, &services.SendMessageRequest{
		ChannelID:       channelID,
		Content:         content,
		ParentMessageID: parent,
	}, sender)
	require.NoError(h.t, err)
	return msg
}

func lastEvent[E events.Event](t testing.TB, rec *events.Recorder) E {
	t.Helper()
	evs := rec.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if ev, ok := evs[i].(E); ok {
			return ev
		}
	}
	var zero E
	t.Fatalf("no %T event recorded", zero)
	return zero
}

func int64p(v int64) *int64 { return &v }
func boolp(v bool) *bool    { return &v }
func strp(v string) *string { return &v }
