// Package snowflake generates message ids that are unique and strictly
// increasing per node, so they can serve as a stable sort and dedup key where
// wall-clock timestamps cannot.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1735689600000 // 2025-01-01 00:00:00 UTC
)

// Node hands out ids. Safe for concurrent use.
type Node struct {
	mu   sync.Mutex
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("snowflake: node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// Generate returns the next id. Ids from one node are strictly increasing:
// the sequence counter breaks ties within a millisecond, and when it wraps
// Generate spins until the clock advances.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()

	if now < n.time {
		// Clock moved backwards; hold the last observed time so ids
		// keep increasing.
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time extracts the millisecond timestamp an id was generated at.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}
