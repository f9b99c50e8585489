// Package presence is the single source of truth for who is online and who
// is typing.
package presence

import (
	"context"
	"errors"
	"sync"

	"github.com/mahaj/chat-core/pkg/model"
)

var (
	// ErrDuplicateConnection means the transport registered the same
	// connection id twice. That is a contract violation on the caller's
	// side, not a state the registry can recover into.
	ErrDuplicateConnection = errors.New("presence: connection already registered")

	// ErrNotFound means the connection id is not registered. Callers treat
	// it as a no-op signal; late typing or leave events after a disconnect
	// race land here.
	ErrNotFound = errors.New("presence: connection not registered")
)

// Mirror receives best-effort copies of membership changes for readers
// outside this process. Failures are logged by the caller, never propagated.
type Mirror interface {
	Joined(ctx context.Context, p model.Participant) error
	Left(ctx context.Context, p model.Participant) error
}

// Registry tracks participants and their typing state. All mutation goes
// through its methods; the typing set can never outlive its participant
// because Leave removes both under one lock.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]model.Participant
	order        []string
	typing       map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]model.Participant),
		typing:       make(map[string]string),
	}
}

func (r *Registry) Join(id, username string) (model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[id]; ok {
		return model.Participant{}, ErrDuplicateConnection
	}

	p := model.Participant{ID: id, Username: username}
	r.participants[id] = p
	r.order = append(r.order, id)
	return p, nil
}

// Leave removes the participant and any typing entry as one operation and
// returns the removed record so the caller can announce the departure. A
// second Leave for the same id returns ErrNotFound.
func (r *Registry) Leave(id string) (model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return model.Participant{}, ErrNotFound
	}

	delete(r.participants, id)
	delete(r.typing, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, nil
}

func (r *Registry) Get(id string) (model.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// List returns every participant once, in insertion order.
func (r *Registry) List() []model.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}

// SetTyping records whether the participant is typing. Unknown ids return
// ErrNotFound without mutating anything, so a typing event racing a
// disconnect cannot reintroduce the participant.
func (r *Registry) SetTyping(id string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return ErrNotFound
	}

	if typing {
		r.typing[id] = p.Username
	} else {
		delete(r.typing, id)
	}
	return nil
}

// Typing returns the usernames currently typing, in participant insertion
// order.
func (r *Registry) Typing() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.typing))
	for _, id := range r.order {
		if name, ok := r.typing[id]; ok {
			out = append(out, name)
		}
	}
	return out
}
