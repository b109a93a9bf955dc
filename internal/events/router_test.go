package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	var got string
	r := NewRouter().
		On(KindReactionAdded, Typed(func(_ context.Context, ev ReactionAdded) error {
			got = ev.Emoji
			return nil
		})).
		Ignore(KindReactionRemoved)

	require.NoError(t, r.Route(context.Background(), ReactionAdded{Emoji: "🎉"}))
	assert.Equal(t, "🎉", got)

	assert.NoError(t, r.Route(context.Background(), ReactionRemoved{}), "unrouted kinds are no-ops")
	assert.True(t, r.Handles(KindReactionAdded))
	assert.False(t, r.Handles(KindReactionRemoved))

	missing := r.Missing()
	assert.NotContains(t, missing, KindReactionAdded)
	assert.NotContains(t, missing, KindReactionRemoved)
	assert.Contains(t, missing, KindMessageSent)
	assert.Len(t, missing, len(AllKinds())-2)
}

func TestTyped_WrongType(t *testing.T) {
	h := Typed(func(context.Context, ReactionAdded) error { return nil })
	assert.Error(t, h(context.Background(), MessageSent{}))
}

func TestEventKindsAreDistinct(t *testing.T) {
	seen := map[Kind]bool{}
	for _, k := range AllKinds() {
		assert.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true
	}

	b := NewBase(4, 5, time.Unix(10, 0))
	var ev Event = MemberLeft{Base: b, EmployeeID: 4}
	assert.Equal(t, int64(4), ev.Actor())
	assert.Equal(t, int64(5), ev.Channel())
	assert.Equal(t, KindMemberLeft, ev.Kind())
}
