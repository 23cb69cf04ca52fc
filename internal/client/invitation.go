package client

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/udisondev/tttserver/internal/game"
)

// State is the Invitation's position in its OPEN -> ACCEPTED -> CLOSED
// state machine. CLOSED is terminal.
type State int

const (
	StateOpen State = iota
	StateAccepted
	StateClosed
)

// ErrBadState is returned when an Invitation transition is attempted from
// a state that does not allow it.
var ErrBadState = errors.New("invitation: bad state transition")

// Invitation binds two distinct Clients: source and target, each with an
// independent Role. It is shared by both endpoints' local invitation
// lists; both endpoints hold a reference for as long as it appears in
// their list (see package doc on the Client<->Invitation reference
// cycle).
type Invitation struct {
	mu sync.Mutex

	source     *Client
	target     *Client
	sourceRole game.Role
	targetRole game.Role

	state State
	g     *game.Game

	refs atomic.Int64
}

// newInvitation creates an OPEN invitation between two distinct clients
// with opposing roles. The returned Invitation carries one reference,
// held on behalf of the caller (source.MakeInvitation will immediately
// add it to both lists, each acquiring its own reference; this initial
// one is released once that's done).
func newInvitation(source, target *Client, sourceRole, targetRole game.Role) *Invitation {
	inv := &Invitation{
		source:     source,
		target:     target,
		sourceRole: sourceRole,
		targetRole: targetRole,
		state:      StateOpen,
	}
	inv.refs.Store(1)
	return inv
}

// Retain acquires one additional reference.
func (inv *Invitation) Retain() {
	inv.refs.Add(1)
}

// Release drops one reference, returning the remaining count.
func (inv *Invitation) Release() int64 {
	return inv.refs.Add(-1)
}

// Source returns the inviting Client.
func (inv *Invitation) Source() *Client { return inv.source }

// Target returns the invited Client.
func (inv *Invitation) Target() *Client { return inv.target }

// RoleOf returns the Role assigned to c within this invitation, or
// game.RoleNone if c is neither endpoint.
func (inv *Invitation) RoleOf(c *Client) game.Role {
	switch c {
	case inv.source:
		return inv.sourceRole
	case inv.target:
		return inv.targetRole
	default:
		return game.RoleNone
	}
}

// State returns the current state.
func (inv *Invitation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Game returns the bound Game, present iff the invitation is or was
// ACCEPTED; nil while OPEN.
func (inv *Invitation) Game() *game.Game {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.g
}

// accept transitions OPEN -> ACCEPTED, creating the Game. Returns
// ErrBadState from any other state.
func (inv *Invitation) accept() (*game.Game, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != StateOpen {
		return nil, ErrBadState
	}
	inv.g = game.New()
	inv.state = StateAccepted
	return inv.g, nil
}

// close transitions to CLOSED. From OPEN any role value closes it
// (revoke/decline). From ACCEPTED, role == game.RoleNone is only valid
// if the game is already over (natural end); any other role resigns the
// game on behalf of that role before closing. Any other starting state
// is ErrBadState.
func (inv *Invitation) close(role game.Role) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch inv.state {
	case StateOpen:
		inv.state = StateClosed
		return nil
	case StateAccepted:
		if role == game.RoleNone {
			if inv.g == nil || !inv.g.Over() {
				return ErrBadState
			}
			inv.state = StateClosed
			return nil
		}
		if err := inv.g.Resign(role); err != nil && !errors.Is(err, game.ErrGameOver) {
			return err
		}
		inv.state = StateClosed
		return nil
	default:
		return ErrBadState
	}
}
