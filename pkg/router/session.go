package router

import "sync"

// sendBuffer sizes each session's outbound queue. A consumer that falls this
// far behind is dropped rather than allowed to stall dispatch.
const sendBuffer = 256

// Session is the router-side handle for one live connection. The transport
// owns the network socket; the router owns registration and the outbound
// queue.
type Session struct {
	ID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewSession(id string) *Session {
	return &Session{ID: id, send: make(chan []byte, sendBuffer)}
}

// Outbound is drained by the transport's write pump. The channel is closed
// once the router drops or unregisters the session; nothing is delivered
// after that.
func (s *Session) Outbound() <-chan []byte { return s.send }

// TrySend enqueues a frame without blocking. It reports false when the
// session is closed or its buffer is full.
func (s *Session) TrySend(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
