package session

import (
	"sync"

	"github.com/okravets/sealchat/internal/models"
)

// pendingRelay is a key request that has been handed to a specific
// connection to serve. If that connection drops before writing the key
// back, the request goes back to the queue.
type pendingRelay struct {
	Room string
	Req  models.KeyRequest
}

type connState struct {
	UserName string
	Room     string
	Relays   []pendingRelay
}

// ConnectionRegistry maps connection ids to transient routing state: which
// user a connection speaks for, which room it is in, and which key relays
// it has been asked to serve. Nothing here survives a restart; durable
// identity stays in the store.
type ConnectionRegistry struct {
	mut    sync.RWMutex
	conns  map[string]*connState
	byUser map[string]string
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]*connState),
		byUser: make(map[string]string),
	}
}

// BindUser associates a connection with a user name without touching its
// room. A user reconnecting from a new connection steals the binding.
func (r *ConnectionRegistry) BindUser(connID, userName string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	state := r.conns[connID]
	if state == nil {
		state = &connState{}
		r.conns[connID] = state
	}
	if state.UserName != "" && state.UserName != userName {
		delete(r.byUser, state.UserName)
	}
	state.UserName = userName
	r.byUser[userName] = connID
}

// SetRoom records the connection's current room and returns the previous
// one, empty if none.
func (r *ConnectionRegistry) SetRoom(connID, room string) (prevRoom string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	state := r.conns[connID]
	if state == nil {
		state = &connState{}
		r.conns[connID] = state
	}
	prevRoom = state.Room
	state.Room = room
	return prevRoom
}

// Lookup returns the user and room bound to a connection.
func (r *ConnectionRegistry) Lookup(connID string) (userName, room string, ok bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	state, ok := r.conns[connID]
	if !ok {
		return "", "", false
	}
	return state.UserName, state.Room, true
}

// LookupUser returns the connection currently speaking for a user.
func (r *ConnectionRegistry) LookupUser(userName string) (connID string, ok bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	connID, ok = r.byUser[userName]
	return connID, ok
}

// AssignRelay records that a connection was asked to serve a key request.
func (r *ConnectionRegistry) AssignRelay(connID, room string, req models.KeyRequest) {
	r.mut.Lock()
	defer r.mut.Unlock()
	state := r.conns[connID]
	if state == nil {
		return
	}
	for _, rel := range state.Relays {
		if rel.Room == room && rel.Req.UserName == req.UserName {
			return
		}
	}
	state.Relays = append(state.Relays, pendingRelay{Room: room, Req: req})
}

// CompleteRelay drops a served relay from whichever connection held it.
func (r *ConnectionRegistry) CompleteRelay(room, targetUser string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	for _, state := range r.conns {
		for i, rel := range state.Relays {
			if rel.Room == room && rel.Req.UserName == targetUser {
				state.Relays = append(state.Relays[:i], state.Relays[i+1:]...)
				break
			}
		}
	}
}

// Unbind removes a connection and returns its final state, nil if the
// connection was never bound.
func (r *ConnectionRegistry) Unbind(connID string) *connState {
	r.mut.Lock()
	defer r.mut.Unlock()
	state, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	if state.UserName != "" && r.byUser[state.UserName] == connID {
		delete(r.byUser, state.UserName)
	}
	return state
}
