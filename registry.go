// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"net"
	"sync"
)

// ConnectionHandle tracks a live stream connection.
//
// Handles are compared by identity: two connections from the same
// address are two distinct handles.
type ConnectionHandle struct {
	// ID is the connection ID created by [NewConnID].
	ID string

	// Peer describes the connection endpoints.
	Peer Peer

	conn   net.Conn
	framer *StreamFramer
}

// Conn returns the underlying connection.
func (h *ConnectionHandle) Conn() net.Conn {
	return h.conn
}

// Framer returns the framer holding the connection's raw buffer.
func (h *ConnectionHandle) Framer() *StreamFramer {
	return h.framer
}

// NewRegistry returns a new [*Registry] reporting to the given [*Dispatcher].
func NewRegistry(dispatcher *Dispatcher) *Registry {
	return &Registry{
		dispatcher: dispatcher,
		handles:    make(map[*ConnectionHandle]struct{}),
	}
}

// Registry tracks the currently open stream connections.
//
// Every handle in the registry corresponds to a connection that has been
// accepted and not yet disconnected. All methods are safe for concurrent use.
type Registry struct {
	closed     bool
	dispatcher *Dispatcher
	handles    map[*ConnectionHandle]struct{}
	mu         sync.Mutex
}

// OnConnect creates and stores the handle for conn, and reports the
// connection as established.
//
// Returns false, without storing anything, once [*Registry.CloseAll] has been
// called. In such a case the caller owns conn and should close it.
func (r *Registry) OnConnect(conn net.Conn, protocol string, framer *StreamFramer) (*ConnectionHandle, bool) {
	connID := NewConnID()
	handle := &ConnectionHandle{
		ID:     connID,
		Peer:   newConnPeer(connID, protocol, conn),
		conn:   conn,
		framer: framer,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false
	}
	r.handles[handle] = struct{}{}
	r.mu.Unlock()

	r.dispatcher.Dispatch(Event{Kind: EventConnectionEstablished, Peer: handle.Peer})
	return handle, true
}

// OnDisconnect removes the handle and reports the connection as closed.
//
// Removing a handle that is not registered is a no-op because disconnect
// notifications may race with an explicit shutdown. Returns whether the
// handle was actually removed.
func (r *Registry) OnDisconnect(handle *ConnectionHandle) bool {
	r.mu.Lock()
	_, found := r.handles[handle]
	delete(r.handles, handle)
	r.mu.Unlock()

	if found {
		r.dispatcher.Dispatch(Event{Kind: EventConnectionClosed, Peer: handle.Peer})
	}
	return found
}

// ActiveCount returns the number of registered connections.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CloseAll prevents new registrations and closes every registered connection.
//
// The handles stay registered until their owners call [*Registry.OnDisconnect].
// Returns the first error that occurred while closing; connections already
// closed by their peer are not an error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	r.closed = true
	handles := make([]*ConnectionHandle, 0, len(r.handles))
	for handle := range r.handles {
		handles = append(handles, handle)
	}
	r.mu.Unlock()

	var firstErr error
	for _, handle := range handles {
		if err := handle.conn.Close(); err != nil && !isClosedErr(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
