package player

import "sync"

// Registry is the process-lifetime set of all players ever seen, keyed
// by name. It is append-only: a Player, once created, lives until
// Finalize is called at shutdown.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry creates an empty Player Registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register finds or inserts the Player for name. The returned Player has
// its reference count bumped once on behalf of the caller, in addition
// to the one reference the Registry itself holds for the process
// lifetime.
func (r *Registry) Register(name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		p.Retain()
		return p
	}

	p := New(name) // New returns with refs == 1, which we treat as the Registry's own hold.
	r.players[name] = p
	p.Retain() // second reference, for the caller.
	return p
}

// Snapshot returns every Player currently held by the Registry, each with
// an extra reference acquired on behalf of the caller.
func (r *Registry) Snapshot() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		p.Retain()
		out = append(out, p)
	}
	return out
}

// Finalize releases every reference the Registry holds on its Players.
// Called once at shutdown, after all Clients are gone.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, p := range r.players {
		p.Release()
		delete(r.players, name)
	}
}

// Count returns the number of distinct players the Registry holds: every
// name registered so far, or zero once Finalize has run.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}
