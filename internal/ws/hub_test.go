package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
	full   bool
}

func (p *fakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.full {
		return false
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		panic(err)
	}
	p.frames = append(p.frames, f)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) Frames() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

func (p *fakePeer) Types() []string {
	var out []string
	for _, f := range p.Frames() {
		out = append(out, f.Type)
	}
	return out
}

func (p *fakePeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// manualClock is a settable clock for typing expiry tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHub(clock *manualClock) *Hub {
	return NewHub(HubConfig{Clock: clock.Now}, nil)
}

func TestConnectBroadcastsJoin(t *testing.T) {
	hub := newTestHub(newManualClock())
	a, b := &fakePeer{}, &fakePeer{}

	hub.Connect(a, 10, 1)
	hub.Connect(b, 10, 2)

	assert.Equal(t, []string{FrameUserJoined}, a.Types())
	assert.Empty(t, b.Types(), "joiner does not see its own join")
	assert.Equal(t, int64(2), a.Frames()[0].UserID)
	assert.False(t, a.Frames()[0].Timestamp.IsZero())

	hub.Disconnect(10, 2)
	assert.Equal(t, []string{FrameUserJoined, FrameUserLeft}, a.Types())
}

func TestConnectReplacesExistingPeer(t *testing.T) {
	hub := newTestHub(newManualClock())
	old, fresh := &fakePeer{}, &fakePeer{}

	hub.Connect(old, 10, 1)
	hub.Connect(fresh, 10, 1)
	assert.True(t, old.IsClosed())

	// the replaced connection's cleanup must not evict the new one
	hub.release(old, 10, 1)
	assert.Len(t, hub.ChannelUsers(10), 1)

	hub.release(fresh, 10, 1)
	assert.Empty(t, hub.ChannelUsers(10))
}

func TestBroadcastToChannel(t *testing.T) {
	hub := newTestHub(newManualClock())
	a, b, slow := &fakePeer{}, &fakePeer{}, &fakePeer{full: true}
	other := &fakePeer{}
	hub.Connect(a, 10, 1)
	hub.Connect(b, 10, 2)
	hub.Connect(slow, 10, 3)
	hub.Connect(other, 20, 4)

	hub.BroadcastToChannel(10, NewFrame(FrameNewMessage, 10, 1, map[string]any{"content": "hi"}, time.Now()), 1)

	assert.NotContains(t, a.Types(), FrameNewMessage)
	assert.Contains(t, b.Types(), FrameNewMessage)
	assert.Empty(t, other.Types())

	// unknown channel is a no-op
	hub.BroadcastToChannel(99, NewFrame(FrameNewMessage, 99, 1, nil, time.Now()), 0)
}

func TestBroadcastToUser(t *testing.T) {
	hub := newTestHub(newManualClock())
	inTen, inTwenty, bystander := &fakePeer{}, &fakePeer{}, &fakePeer{}
	hub.Connect(inTen, 10, 1)
	hub.Connect(inTwenty, 20, 1)
	hub.Connect(bystander, 10, 2)

	hub.BroadcastToUser(1, NewFrame(FrameDirectMessage, 0, 2, nil, time.Now()))
	assert.Contains(t, inTen.Types(), FrameDirectMessage)
	assert.Contains(t, inTwenty.Types(), FrameDirectMessage)
	assert.NotContains(t, bystander.Types(), FrameDirectMessage)
	assert.Equal(t, []int64{10, 20}, hub.UserChannels(1))
}

func TestDeliverUserChannels(t *testing.T) {
	hub := newTestHub(newManualClock())
	self, peer10, peer20 := &fakePeer{}, &fakePeer{}, &fakePeer{}
	hub.Connect(self, 10, 1)
	hub.Connect(&fakePeer{}, 20, 1)
	hub.Connect(peer10, 10, 2)
	hub.Connect(peer20, 20, 3)

	hub.Deliver(Delivery{Scope: ScopeUserChannels, Target: 1, Exclude: 1,
		Frame: NewFrame(FrameStatusChange, 0, 1, nil, time.Now())})

	require.Contains(t, peer10.Types(), FrameStatusChange)
	require.Contains(t, peer20.Types(), FrameStatusChange)
	assert.NotContains(t, self.Types(), FrameStatusChange)
	last := peer20.Frames()[len(peer20.Frames())-1]
	assert.Equal(t, int64(20), last.ChannelID)
}

func TestTypingExpiry(t *testing.T) {
	clock := newManualClock()
	hub := newTestHub(clock)
	hub.Connect(&fakePeer{}, 10, 1)
	hub.Connect(&fakePeer{}, 10, 2)

	hub.SetTyping(10, 1, true)
	assert.Equal(t, []int64{1}, hub.TypingUsers(10))
	assert.Equal(t, []ChannelUser{{UserID: 1, IsTyping: true}, {UserID: 2}}, hub.ChannelUsers(10))

	clock.Advance(9 * time.Second)
	assert.Equal(t, []int64{1}, hub.TypingUsers(10))

	clock.Advance(time.Second)
	assert.Empty(t, hub.TypingUsers(10), "filtered at read time before any sweep")
	assert.Equal(t, 1, hub.Sweep(clock.Now()))
	assert.Equal(t, 0, hub.Sweep(clock.Now()))

	hub.SetTyping(10, 2, true)
	hub.SetTyping(10, 2, false)
	assert.Empty(t, hub.TypingUsers(10))
}

func TestDisconnectClearsTypingAndDropsEmptyRoom(t *testing.T) {
	hub := newTestHub(newManualClock())
	hub.Connect(&fakePeer{}, 10, 1)
	hub.SetTyping(10, 1, true)

	hub.Disconnect(10, 1)
	assert.Empty(t, hub.TypingUsers(10))
	hub.mu.RLock()
	_, ok := hub.rooms[10]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

func TestStartAndShutdown(t *testing.T) {
	clock := newManualClock()
	hub := NewHub(HubConfig{Clock: clock.Now, SweepInterval: 10 * time.Millisecond}, nil)
	p := &fakePeer{}
	hub.Connect(p, 10, 1)
	hub.SetTyping(10, 1, true)

	hub.Start(context.Background())
	hub.Start(context.Background())
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		r := hub.rooms[10]
		r.mu.RLock()
		defer r.mu.RUnlock()
		return len(r.typing) == 0
	}, time.Second, 5*time.Millisecond)

	hub.Shutdown()
	assert.True(t, p.IsClosed())
	assert.Empty(t, hub.ChannelUsers(10))
	hub.Shutdown()
}

func TestConcurrentHubAccess(t *testing.T) {
	hub := newTestHub(newManualClock())
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			p := &fakePeer{}
			cid := uid % 3
			hub.Connect(p, cid, uid)
			hub.SetTyping(cid, uid, true)
			hub.BroadcastToChannel(cid, NewFrame(FrameNewMessage, cid, uid, nil, time.Now()), uid)
			hub.BroadcastToUser(uid, NewFrame(FrameDirectMessage, 0, uid, nil, time.Now()))
			_ = hub.ChannelUsers(cid)
			hub.Disconnect(cid, uid)
		}(int64(i + 1))
	}
	wg.Wait()
	hub.Sweep(time.Now().Add(time.Hour))

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.rooms)
	assert.Empty(t, hub.userChannels)
}
