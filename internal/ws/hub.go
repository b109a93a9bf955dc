package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const (
	DefaultTypingTTL     = 10 * time.Second
	DefaultSweepInterval = 30 * time.Second
)

// Peer 一个已注册的连接。Send 必须非阻塞，缓冲区满或已关闭时返回 false。
type Peer interface {
	Send(data []byte) bool
	Close()
}

// room 单个频道的连接与输入状态，由自己的锁保护
type room struct {
	mu     sync.RWMutex
	peers  map[int64]Peer
	typing map[int64]time.Time
}

func newRoom() *room {
	return &room{peers: make(map[int64]Peer), typing: make(map[int64]time.Time)}
}

func (r *room) empty() bool {
	return len(r.peers) == 0 && len(r.typing) == 0
}

// HubConfig Hub 参数，零值使用默认值
type HubConfig struct {
	TypingTTL     time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
}

// Hub 维护 频道 -> 用户 -> 连接 的映射并负责广播。
// Hub 锁只保护 rooms 与 userChannels 两个 map，频道内状态由 room 锁保护。
type Hub struct {
	mu           sync.RWMutex
	rooms        map[int64]*room
	userChannels map[int64]map[int64]struct{}

	typingTTL time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *logger.Logger

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewHub(cfg HubConfig, log *logger.Logger) *Hub {
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = DefaultTypingTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		rooms:        make(map[int64]*room),
		userChannels: make(map[int64]map[int64]struct{}),
		typingTTL:    cfg.TypingTTL,
		interval:     cfg.SweepInterval,
		now:          cfg.Clock,
		logger:       log.Named("hub"),
	}
}

// Connect 注册连接；同一 (channel, user) 的旧连接被替换并关闭
func (h *Hub) Connect(peer Peer, channelID, userID int64) {
	h.mu.Lock()
	r, ok := h.rooms[channelID]
	if !ok {
		r = newRoom()
		h.rooms[channelID] = r
	}
	chans, ok := h.userChannels[userID]
	if !ok {
		chans = make(map[int64]struct{})
		h.userChannels[userID] = chans
	}
	chans[channelID] = struct{}{}

	r.mu.Lock()
	old := r.peers[userID]
	r.peers[userID] = peer
	r.mu.Unlock()
	h.mu.Unlock()

	if old != nil && old != peer {
		old.Close()
	}
	h.logger.Debug("peer connected", zap.Int64("channel_id", channelID), zap.Int64("user_id", userID))
	h.BroadcastToChannel(channelID, NewFrame(FrameUserJoined, channelID, userID, nil, h.now()), userID)
}

// Disconnect 注销连接并清除输入状态，空频道被移除
func (h *Hub) Disconnect(channelID, userID int64) {
	h.remove(channelID, userID, nil)
}

// release 只在 peer 仍是当前注册的连接时注销，避免被替换的旧连接误删新连接
func (h *Hub) release(peer Peer, channelID, userID int64) {
	h.remove(channelID, userID, peer)
}

func (h *Hub) remove(channelID, userID int64, expect Peer) {
	h.mu.Lock()
	r, ok := h.rooms[channelID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.mu.Lock()
	current, ok := r.peers[userID]
	if !ok || (expect != nil && current != expect) {
		r.mu.Unlock()
		h.mu.Unlock()
		return
	}
	delete(r.peers, userID)
	delete(r.typing, userID)
	if r.empty() {
		delete(h.rooms, channelID)
	}
	r.mu.Unlock()

	if chans, ok := h.userChannels[userID]; ok {
		delete(chans, channelID)
		if len(chans) == 0 {
			delete(h.userChannels, userID)
		}
	}
	h.mu.Unlock()

	h.logger.Debug("peer disconnected", zap.Int64("channel_id", channelID), zap.Int64("user_id", userID))
	h.BroadcastToChannel(channelID, NewFrame(FrameUserLeft, channelID, userID, nil, h.now()), userID)
}

// Kick 注销并关闭用户在频道上的连接
func (h *Hub) Kick(channelID, userID int64) {
	r := h.room(channelID)
	if r == nil {
		return
	}
	r.mu.RLock()
	peer := r.peers[userID]
	r.mu.RUnlock()
	if peer == nil {
		return
	}
	h.remove(channelID, userID, peer)
	peer.Close()
	h.logger.Info("peer evicted", zap.Int64("channel_id", channelID), zap.Int64("user_id", userID))
}

// CloseRoom 移除频道并关闭其中所有连接
func (h *Hub) CloseRoom(channelID int64) {
	h.mu.Lock()
	r, ok := h.rooms[channelID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, channelID)
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.peers))
	for uid, p := range r.peers {
		peers = append(peers, p)
		if chans, ok := h.userChannels[uid]; ok {
			delete(chans, channelID)
			if len(chans) == 0 {
				delete(h.userChannels, uid)
			}
		}
	}
	r.peers = make(map[int64]Peer)
	r.typing = make(map[int64]time.Time)
	r.mu.Unlock()
	h.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	h.logger.Info("room closed", zap.Int64("channel_id", channelID), zap.Int("closed_peers", len(peers)))
}

func (h *Hub) room(channelID int64) *room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[channelID]
}

// BroadcastToChannel 发给频道内除 exclude 外的所有连接，exclude 为 0 表示不排除
func (h *Hub) BroadcastToChannel(channelID int64, f Frame, exclude int64) {
	r := h.room(channelID)
	if r == nil {
		return
	}
	data, err := f.encode()
	if err != nil {
		h.logger.Error("failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}

	r.mu.RLock()
	targets := make(map[int64]Peer, len(r.peers))
	for uid, p := range r.peers {
		if uid != exclude {
			targets[uid] = p
		}
	}
	r.mu.RUnlock()

	for uid, p := range targets {
		if !p.Send(data) {
			h.logger.Warn("dropping frame for slow or closed peer",
				zap.Int64("channel_id", channelID), zap.Int64("user_id", uid), zap.String("type", f.Type))
		}
	}
}

// BroadcastToUser 发给用户在任意频道上的连接
func (h *Hub) BroadcastToUser(userID int64, f Frame) {
	data, err := f.encode()
	if err != nil {
		h.logger.Error("failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	for _, p := range h.userPeers(userID) {
		if !p.Send(data) {
			h.logger.Warn("dropping frame for slow or closed peer",
				zap.Int64("user_id", userID), zap.String("type", f.Type))
		}
	}
}

func (h *Hub) userPeers(userID int64) []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Peer
	for cid := range h.userChannels[userID] {
		r := h.rooms[cid]
		if r == nil {
			continue
		}
		r.mu.RLock()
		if p, ok := r.peers[userID]; ok {
			out = append(out, p)
		}
		r.mu.RUnlock()
	}
	return out
}

// UserChannels 用户当前连接的频道
func (h *Hub) UserChannels(userID int64) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]int64, 0, len(h.userChannels[userID]))
	for cid := range h.userChannels[userID] {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deliver implements Deliverer for the local node.
func (h *Hub) Deliver(d Delivery) {
	switch d.Scope {
	case ScopeChannel:
		h.BroadcastToChannel(d.Target, d.Frame, d.Exclude)
	case ScopeUser:
		h.BroadcastToUser(d.Target, d.Frame)
	case ScopeUserChannels:
		for _, cid := range h.UserChannels(d.Target) {
			f := d.Frame
			f.ChannelID = cid
			h.BroadcastToChannel(cid, f, d.Exclude)
		}
	case ScopeEvict:
		h.BroadcastToChannel(d.Target, d.Frame, d.Exclude)
		if d.Evict != 0 {
			h.Kick(d.Target, d.Evict)
		} else {
			h.CloseRoom(d.Target)
		}
	default:
		h.logger.Warn("unknown delivery scope", zap.String("scope", string(d.Scope)))
	}
}

// SetTyping 记录或清除输入状态
func (h *Hub) SetTyping(channelID, userID int64, typing bool) {
	if !typing {
		if r := h.room(channelID); r != nil {
			r.mu.Lock()
			delete(r.typing, userID)
			r.mu.Unlock()
		}
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[channelID]
	if !ok {
		r = newRoom()
		h.rooms[channelID] = r
	}
	r.mu.Lock()
	r.typing[userID] = h.now()
	r.mu.Unlock()
	h.mu.Unlock()
}

// TypingUsers 只返回未过期的输入状态，过期条目留给 Sweep 清理
func (h *Hub) TypingUsers(channelID int64) []int64 {
	r := h.room(channelID)
	if r == nil {
		return []int64{}
	}
	now := h.now()
	r.mu.RLock()
	out := make([]int64, 0, len(r.typing))
	for uid, at := range r.typing {
		if now.Sub(at) < h.typingTTL {
			out = append(out, uid)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChannelUser 频道在线用户
type ChannelUser struct {
	UserID   int64 `json:"user_id"`
	IsTyping bool  `json:"is_typing"`
}

func (h *Hub) ChannelUsers(channelID int64) []ChannelUser {
	r := h.room(channelID)
	if r == nil {
		return []ChannelUser{}
	}
	now := h.now()
	r.mu.RLock()
	out := make([]ChannelUser, 0, len(r.peers))
	for uid := range r.peers {
		at, ok := r.typing[uid]
		out = append(out, ChannelUser{UserID: uid, IsTyping: ok && now.Sub(at) < h.typingTTL})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sweep 清除在 now 时已过期的输入状态并移除空频道，返回清除条数
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	purged := 0
	for cid, r := range h.rooms {
		r.mu.Lock()
		for uid, at := range r.typing {
			if now.Sub(at) >= h.typingTTL {
				delete(r.typing, uid)
				purged++
			}
		}
		if r.empty() {
			delete(h.rooms, cid)
		}
		r.mu.Unlock()
	}
	return purged
}

// Start 启动后台清理任务，重复调用无效
func (h *Hub) Start(ctx context.Context) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.Sweep(h.now()); n > 0 {
					h.logger.Debug("expired typing indicators purged", zap.Int("count", n))
				}
			}
		}
	}(h.done)
}

// Shutdown 停止清理任务并关闭所有连接
func (h *Hub) Shutdown() {
	h.lifecycle.Lock()
	if h.cancel != nil {
		h.cancel()
		<-h.done
		h.cancel = nil
	}
	h.lifecycle.Unlock()

	h.mu.Lock()
	var peers []Peer
	for _, r := range h.rooms {
		r.mu.Lock()
		for _, p := range r.peers {
			peers = append(peers, p)
		}
		r.mu.Unlock()
	}
	h.rooms = make(map[int64]*room)
	h.userChannels = make(map[int64]map[int64]struct{})
	h.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	h.logger.Info("hub stopped", zap.Int("closed_peers", len(peers)))
}
