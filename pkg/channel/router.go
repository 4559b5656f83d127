package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"avaneesh/md3-go/pkg/md3"
)

var ErrNoSession = errors.New("no session for station")

// Session is an MD3 station served on a channel
type Session interface {
	// OnReceive is called with each complete message addressed to the station
	OnReceive(ctx context.Context, msg md3.Message) error

	// StationAddress returns the 7-bit MD3 station address
	StationAddress() uint8
}

// Router routes messages to sessions by station address.
// Several stations may share one line (multi-drop).
type Router struct {
	sessions map[uint8]Session
	mu       sync.RWMutex
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		sessions: make(map[uint8]Session),
	}
}

// AddSession adds a session to the router
func (r *Router) AddSession(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := session.StationAddress()
	if addr > md3.MaxStationAddress {
		return fmt.Errorf("station address %d out of range", addr)
	}
	if _, exists := r.sessions[addr]; exists {
		return fmt.Errorf("session with station address %d already exists", addr)
	}

	r.sessions[addr] = session
	return nil
}

// RemoveSession removes a session from the router
func (r *Router) RemoveSession(address uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, address)
}

// Route delivers msg to the session owning its header station address
func (r *Router) Route(ctx context.Context, msg md3.Message) error {
	station := msg.Header().Station()

	r.mu.RLock()
	session, exists := r.sessions[station]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w %d", ErrNoSession, station)
	}
	return session.OnReceive(ctx, msg)
}

// GetSession returns a session by station address
func (r *Router) GetSession(address uint8) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[address]
	return session, exists
}

// GetSessionCount returns the number of active sessions
func (r *Router) GetSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Clear removes all sessions
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[uint8]Session)
}
