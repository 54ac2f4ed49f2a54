package realtime

import (
	"fmt"
	"sync"

	"github.com/codecollab/collab-server/pkg/metrics"
)

// OverflowPolicy decides what happens when a participant's send queue is full.
type OverflowPolicy int

const (
	// Disconnect closes the participant's queue; its connection then shuts
	// down and the participant leaves every room.
	Disconnect OverflowPolicy = iota
	// DropOldest discards the oldest queued event to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "disconnect"
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "disconnect":
		return Disconnect, nil
	case "drop-oldest":
		return DropOldest, nil
	}
	return Disconnect, fmt.Errorf("unknown overflow policy %q", s)
}

// Participant is one live connection: a connection id, the verified user
// behind it and a bounded outbound queue.
type Participant struct {
	ConnID string
	UserID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
	policy OverflowPolicy
}

func NewParticipant(connID, userID string, queueSize int, policy OverflowPolicy) *Participant {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Participant{ConnID: connID, UserID: userID, send: make(chan []byte, queueSize), policy: policy}
}

// Outbound is drained by the connection's write loop. It is closed when the
// participant is closed.
func (p *Participant) Outbound() <-chan []byte {
	return p.send
}

// Enqueue never blocks. It reports whether msg was queued.
func (p *Participant) Enqueue(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- msg:
		return true
	default:
	}

	metrics.EventsDropped.WithLabelValues(p.policy.String()).Inc()
	if p.policy == DropOldest {
		select {
		case <-p.send:
		default:
		}
		select {
		case p.send <- msg:
			return true
		default:
			return false
		}
	}
	p.closed = true
	close(p.send)
	return false
}

// Close is idempotent.
func (p *Participant) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

func (p *Participant) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
