// Package registry manages the set of connected Clients: a bounded
// table keyed by Client, name lookup for logged in clients, and the
// graceful shutdown sequence.
package registry

import (
	"errors"
	"sync"

	"github.com/udisondev/tttserver/internal/client"
	"github.com/udisondev/tttserver/internal/player"
)

// ErrFull is returned by Register when the registry is already holding
// MaxClients connections.
var ErrFull = errors.New("registry: at capacity")

// ErrNotFound is returned by Lookup when no logged-in client matches.
var ErrNotFound = errors.New("registry: no such client")

// Registry holds every currently connected Client in a fixed-capacity
// table, thread-safe for concurrent registration, lookup, and shutdown.
type Registry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	max      int
	clients  map[*client.Client]struct{}
	draining bool
}

// New creates a Registry with room for max simultaneous clients.
func New(max int) *Registry {
	r := &Registry{
		max:     max,
		clients: make(map[*client.Client]struct{}, max),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register adds c to the table. The reference it holds is the one c
// already carries from client.New (documented there as held "on behalf
// of the caller, ordinarily the Client Registry"); Register does not
// Retain a second one. Fails with ErrFull once MaxClients connections
// are held, or once a shutdown has begun.
func (r *Registry) Register(c *client.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return ErrFull
	}
	if len(r.clients) >= r.max {
		return ErrFull
	}
	r.clients[c] = struct{}{}
	return nil
}

// Unregister removes c from the table and releases the Registry's
// reference. Safe to call more than once; the second call is a no-op.
func (r *Registry) Unregister(c *client.Client) {
	r.mu.Lock()
	_, ok := r.clients[c]
	if ok {
		delete(r.clients, c)
	}
	empty := len(r.clients) == 0
	r.mu.Unlock()

	if !ok {
		return
	}
	c.Release()
	if empty {
		r.cond.Broadcast()
	}
}

// Lookup finds the logged-in client playing under name, with an extra
// reference retained for the caller to Release. Comparison is exact
// (case-sensitive), per the login protocol's uniqueness rule.
func (r *Registry) Lookup(name string) (*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		p := c.Player()
		if p != nil && p.Name() == name {
			c.Retain()
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// SnapshotPlayers returns every currently logged-in Player, in no
// particular order, each with an extra reference retained for the
// caller to Release.
func (r *Registry) SnapshotPlayers() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*player.Player, 0, len(r.clients))
	for c := range r.clients {
		if p := c.Player(); p != nil {
			p.Retain()
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// ShutdownAll marks the registry as draining (rejecting further
// Register calls) and shuts down every currently registered
// connection with Client.HalfClose, so each session loop observes EOF
// on its next read.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	r.draining = true
	targets := make([]*client.Client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.HalfClose(); err != nil {
			continue
		}
	}
}

// WaitForEmpty blocks until every registered client has been
// unregistered (i.e. every session loop has exited).
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.clients) > 0 {
		r.cond.Wait()
	}
}
