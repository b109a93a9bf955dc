package snowflake

import (
	"errors"
	"sync"
	"time"
)

// Epoch is 2024-01-01T00:00:00Z in milliseconds.
const Epoch int64 = 1704067200000

const (
	nodeBits     = 10
	sequenceBits = 12

	maxNode      = -1 ^ (-1 << nodeBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

var ErrInvalidNode = errors.New("snowflake node id out of range [0, 1023]")

// Node hands out 63-bit ids ordered by creation millisecond. Every entity in
// the chat store is keyed by one, so id order doubles as a creation-time
// tie-break.
type Node struct {
	mu       sync.Mutex
	node     int64
	lastMs   int64
	sequence int64
	clock    func() time.Time
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > maxNode {
		return nil, ErrInvalidNode
	}
	return &Node{node: node, clock: time.Now}, nil
}

// MustNode is NewNode for static configuration; it panics on a bad node id.
func MustNode(node int64) *Node {
	n, err := NewNode(node)
	if err != nil {
		panic(err)
	}
	return n
}

// Generate returns the next id. If the wall clock steps backwards the node
// keeps issuing from the last seen millisecond instead of failing.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.clock().UnixMilli()
	if ms < n.lastMs {
		ms = n.lastMs
	}

	if ms == n.lastMs {
		n.sequence = (n.sequence + 1) & sequenceMask
		if n.sequence == 0 {
			// sequence exhausted: borrow the next millisecond
			ms = n.lastMs + 1
		}
	} else {
		n.sequence = 0
	}
	n.lastMs = ms

	return (ms-Epoch)<<timeShift | n.node<<nodeShift | n.sequence
}

// Time extracts the creation time encoded in id.
func Time(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + Epoch)
}

// NodeOf extracts the node id encoded in id.
func NodeOf(id int64) int64 {
	return id >> nodeShift & maxNode
}
