package stream

import (
	"context"
	"errors"
	"sync"
)

// Registry errors.
var (
	ErrUnknownStream = errors.New("unknown stream")
	ErrNotOwner      = errors.New("stream belongs to another caller")
)

type registration struct {
	owner  string
	cancel context.CancelCauseFunc
}

// Registry tracks in-flight sessions so a client can stop its own stream
// from a separate request.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]registration)}
}

func (r *Registry) add(id, owner string, cancel context.CancelCauseFunc) {
	r.mu.Lock()
	r.sessions[id] = registration{owner: owner, cancel: cancel}
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Stop cancels the session id if it is owned by owner.
func (r *Registry) Stop(id, owner string) error {
	r.mu.Lock()
	reg, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return ErrUnknownStream
	}
	if reg.owner != owner {
		return ErrNotOwner
	}
	reg.cancel(ErrStopped)
	return nil
}

// StopAll cancels every in-flight session with cause.
func (r *Registry) StopAll(cause error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.sessions {
		reg.cancel(cause)
	}
	return len(r.sessions)
}

// Len returns the number of in-flight sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
