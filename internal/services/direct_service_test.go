package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProjectChat/internal/events"
	"github.com/Gopher0727/ProjectChat/internal/services"
)

func TestDirectMessages(t *testing.T) {
	h := newHarness(t)
	h.profiles.Sync(h.ctx, userA, "Ada")

	_, err := h.direct.Send(h.ctx, &services.SendDirectRequest{RecipientID: userA, Content: "me"}, userA)
	assert.ErrorIs(t, err, services.ErrValidation)

	dm, err := h.direct.Send(h.ctx, &services.SendDirectRequest{RecipientID: userB, Content: "ping"}, userA)
	require.NoError(t, err)
	assert.Equal(t, "Ada", dm.SenderName)
	assert.False(t, dm.IsRead)
	assert.Equal(t, userB, lastEvent[events.DirectMessageSent](t, h.rec).Message.RecipientID)

	_, err = h.direct.Send(h.ctx, &services.SendDirectRequest{RecipientID: userA, Content: "pong"}, userB)
	require.NoError(t, err)

	conv, err := h.direct.ListConversation(h.ctx, userA, userB, services.Pagination{})
	require.NoError(t, err)
	require.Len(t, conv.Items, 2)
	assert.Equal(t, int64(2), conv.Total)

	h.rec.Reset()
	n, err := h.direct.MarkRead(h.ctx, userA, userB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	read := lastEvent[events.DirectMessageRead](t, h.rec)
	assert.Equal(t, userB, read.Actor())
	assert.Equal(t, userA, read.SenderID)

	h.rec.Reset()
	n, err = h.direct.MarkRead(h.ctx, userA, userB)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.rec.Events())
}
