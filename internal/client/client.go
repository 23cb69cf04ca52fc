// Package client implements the per-connection Client and the
// Invitation state machine that binds two Clients together. The two
// types live in one package because an Invitation holds pointers to
// both its endpoint Clients and each Client's invitation list holds a
// pointer back to the Invitation: a cycle that Go's package system
// cannot express across package boundaries, and that this server
// breaks not with weak references but with the discipline that removal
// from both endpoints' lists always precedes the invitation's last
// release (see MakeInvitation and removeInvitation).
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/tttserver/internal/codec"
	"github.com/udisondev/tttserver/internal/game"
	"github.com/udisondev/tttserver/internal/player"
)

// Conn is the subset of net.Conn a Client needs, plus the half-close
// used by graceful shutdown.
type Conn interface {
	net.Conn
	CloseWrite() error
}

// Errors returned by Client operations. These map to the NACK-producing
// error kinds in the protocol (transport errors are reported separately,
// by the codec).
var (
	ErrAlreadyLoggedIn = errors.New("client: already logged in")
	ErrNotLoggedIn     = errors.New("client: not logged in")
	ErrSelfInvite      = errors.New("client: cannot invite self")
	ErrNotFound        = errors.New("client: invitation not found")
	ErrNotOwner        = errors.New("client: not the right side of the invitation")
)

var seqCounter atomic.Uint64

type localInvitation struct {
	id  int
	inv *Invitation
}

// frame is a queued, not-yet-serialized outbound packet.
type frame struct {
	header  codec.Header
	payload []byte
}

// Client is a connected socket endpoint: login state, the list of
// invitations it currently holds a local view of, and a serialized
// outbound write path.
type Client struct {
	conn Conn
	seq  uint64 // stable creation-order id, used for pairwise lock ordering

	mu          sync.Mutex
	loggedIn    bool
	plyr        *player.Player
	invitations []localInvitation
	nextInvID   int

	refs atomic.Int64

	sendCh       chan frame
	closeCh      chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// New creates a Client for an accepted connection. The Client is
// returned with one reference held on behalf of the caller (ordinarily
// the Client Registry). The caller must call Run to start the writer
// goroutine.
func New(conn Conn, sendQueueSize int, writeTimeout time.Duration) *Client {
	c := &Client{
		conn:         conn,
		seq:          seqCounter.Add(1),
		sendCh:       make(chan frame, sendQueueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	c.refs.Store(1)
	return c
}

// Retain acquires one additional reference.
func (c *Client) Retain() {
	c.refs.Add(1)
}

// Release drops one reference, returning the remaining count.
func (c *Client) Release() int64 {
	return c.refs.Add(-1)
}

// Conn returns the underlying connection (for reading frames in the
// session loop).
func (c *Client) Conn() Conn {
	return c.conn
}

// Run drains the write queue until Close is called or the connection
// fails. It must run in its own goroutine for the Client's lifetime;
// this is the only goroutine that ever calls conn.Write, which is what
// makes "packet writes on any Client are serialized" true even though
// Send itself never blocks on I/O.
func (c *Client) Run() {
	for {
		select {
		case f, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "error", err)
				return
			}
			if err := codec.Send(c.conn, f.header, f.payload); err != nil {
				slog.Warn("write failed, closing client", "error", err)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// Send queues a frame for delivery by the writer goroutine. It never
// blocks: a full queue means a slow client, and that client is
// disconnected rather than allowed to stall the sender. Failures here
// are reported to the caller so notification-sending call sites can log
// them as best-effort per the spec (the invitation state change that
// triggered the notification has already happened and is not rolled
// back).
func (c *Client) Send(h codec.Header, payload []byte) error {
	select {
	case c.sendCh <- frame{header: h, payload: payload}:
		return nil
	default:
		c.CloseAsync()
		_ = c.conn.Close()
		return fmt.Errorf("client: send queue full")
	}
}

// CloseAsync signals the writer goroutine to stop without blocking. Safe
// to call more than once.
func (c *Client) CloseAsync() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
}

// Close stops the writer goroutine and fully closes the underlying
// connection. The session loop for this client must already have
// returned by the time this is called, so nothing is left reading or
// writing conn afterward.
func (c *Client) Close() error {
	c.CloseAsync()
	return c.conn.Close()
}

// HalfClose is what shutdown_all uses to end every session loop. Where
// the connection supports it (as *net.TCPConn does) it shuts down the
// read side, so the session loop's next read returns EOF; it then
// closes the write side. Frames written after that are not delivered.
func (c *Client) HalfClose() error {
	if rc, ok := c.conn.(interface{ CloseRead() error }); ok {
		_ = rc.CloseRead()
	}
	return c.conn.CloseWrite()
}

// --- login state ---

// LoggedIn reports whether the client is currently logged in.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Player returns the logged-in Player, or nil if not logged in.
func (c *Client) Player() *player.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plyr
}

// Login marks the client logged in as p. It takes over the caller's
// reference to p (Logout releases it) rather than acquiring a new one.
// Fails if already logged in.
func (c *Client) Login(p *player.Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return ErrAlreadyLoggedIn
	}
	c.loggedIn = true
	c.plyr = p
	return nil
}

// Logout resolves every invitation this client currently holds — resign
// if a game is in progress, otherwise revoke (as source) or decline (as
// target) — then releases the Player reference. Individual invitation
// failures are logged and do not stop the sweep; by construction every
// entry in the list should still be live and owned by this client, so a
// failure here indicates the invitation closed out from under us, which
// is itself harmless (it is already gone from our list's perspective
// once the corresponding op succeeds).
func (c *Client) Logout() error {
	c.mu.Lock()
	if !c.loggedIn {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	ids := make([]int, len(c.invitations))
	for i, li := range c.invitations {
		ids[i] = li.id
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.resolveInvitationForLogout(id)
	}

	c.mu.Lock()
	c.loggedIn = false
	p := c.plyr
	c.plyr = nil
	c.mu.Unlock()

	if p != nil {
		p.Release()
	}
	return nil
}

func (c *Client) resolveInvitationForLogout(id int) {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return
	}

	if li.inv.State() == StateAccepted {
		if err := c.ResignGame(id); err != nil {
			slog.Debug("logout: resign failed", "id", id, "error", err)
		}
		return
	}
	if li.inv.Source() == c {
		if err := c.RevokeInvitation(id); err != nil {
			slog.Debug("logout: revoke failed", "id", id, "error", err)
		}
		return
	}
	if err := c.DeclineInvitation(id); err != nil {
		slog.Debug("logout: decline failed", "id", id, "error", err)
	}
}

// --- local invitation list ---

// findLocked looks up a local invitation entry by ID. Caller must hold c.mu.
func (c *Client) findLocked(id int) (localInvitation, bool) {
	for _, li := range c.invitations {
		if li.id == id {
			return li, true
		}
	}
	return localInvitation{}, false
}

// removeInvitation locates inv by identity, releases this client's list
// reference, and returns the local ID it was assigned.
func (c *Client) removeInvitation(inv *Invitation) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, li := range c.invitations {
		if li.inv == inv {
			c.invitations = append(c.invitations[:i], c.invitations[i+1:]...)
			inv.Release()
			return li.id, true
		}
	}
	return 0, false
}

// lockPairOrdered locks a and b in a stable order derived from their
// creation sequence numbers, never by call-site argument order, so any
// two goroutines operating on the same pair of clients always acquire
// the locks in the same order. Returns an unlock function.
func lockPairOrdered(a, b *Client) func() {
	first, second := a, b
	if second.seq < first.seq {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// --- invitation operations ---

// MakeInvitation creates an OPEN invitation from this client (source) to
// target, with the given roles, and notifies target. Forbidden if
// target is this same client.
func (c *Client) MakeInvitation(target *Client, sourceRole, targetRole game.Role) (int, error) {
	if target == c {
		return 0, ErrSelfInvite
	}

	inv := newInvitation(c, target, sourceRole, targetRole)

	unlock := lockPairOrdered(c, target)
	sourceID := c.addInvitationLocked(inv)
	targetID := target.addInvitationLocked(inv)
	unlock()
	inv.Release() // release newInvitation's starting reference; both lists now hold their own.

	sourceName := ""
	if p := c.Player(); p != nil {
		sourceName = p.Name()
	}
	if err := target.Send(codec.Header{Type: codec.TypeInvited, ID: uint8(targetID), Role: roleByte(targetRole)}, []byte(sourceName)); err != nil {
		slog.Warn("notify INVITED failed", "source", sourceName, "error", err)
	}
	return sourceID, nil
}

// addInvitationLocked is addInvitation's body, usable when the caller
// already holds c.mu (as lockPairOrdered arranges for MakeInvitation).
func (c *Client) addInvitationLocked(inv *Invitation) int {
	id := c.nextInvID
	c.nextInvID++
	inv.Retain()
	c.invitations = append(c.invitations, localInvitation{id: id, inv: inv})
	return id
}

// RevokeInvitation cancels an OPEN invitation this client created.
func (c *Client) RevokeInvitation(id int) error {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if li.inv.Source() != c {
		return ErrNotOwner
	}
	if li.inv.State() != StateOpen {
		return ErrBadState
	}
	if err := li.inv.close(game.RoleNone); err != nil {
		return err
	}

	target := li.inv.Target()
	c.removeInvitation(li.inv)
	targetID, _ := target.removeInvitation(li.inv)

	if err := target.Send(codec.Header{Type: codec.TypeRevoked, ID: uint8(targetID)}, nil); err != nil {
		slog.Warn("notify REVOKED failed", "error", err)
	}
	return nil
}

// DeclineInvitation rejects an OPEN invitation this client was the
// target of.
func (c *Client) DeclineInvitation(id int) error {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if li.inv.Target() != c {
		return ErrNotOwner
	}
	if li.inv.State() != StateOpen {
		return ErrBadState
	}
	if err := li.inv.close(game.RoleNone); err != nil {
		return err
	}

	source := li.inv.Source()
	c.removeInvitation(li.inv)
	sourceID, _ := source.removeInvitation(li.inv)

	if err := source.Send(codec.Header{Type: codec.TypeDeclined, ID: uint8(sourceID)}, nil); err != nil {
		slog.Warn("notify DECLINED failed", "error", err)
	}
	return nil
}

// AcceptInvitation accepts an OPEN invitation this client is the target
// of, creating its Game. It notifies the source with ACCEPTED; the
// payload carries the initial board state iff the source plays FIRST.
// The string return is the initial board state to be folded into this
// client's own ACK, non-empty iff this (accepting) client plays FIRST
// — exactly one of the two clients receives the initial state, whichever
// plays first.
func (c *Client) AcceptInvitation(id int) (string, error) {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	if li.inv.Target() != c {
		return "", ErrNotOwner
	}

	g, err := li.inv.accept()
	if err != nil {
		return "", err
	}

	state := g.UnparseState()
	source := li.inv.Source()
	sourceRole := li.inv.RoleOf(source)

	sourceID := localIDFor(li.inv, source)
	if sourceRole == game.RoleFirst {
		if err := source.Send(codec.Header{Type: codec.TypeAccepted, ID: uint8(sourceID)}, []byte(state)); err != nil {
			slog.Warn("notify ACCEPTED failed", "error", err)
		}
		return "", nil
	}

	if err := source.Send(codec.Header{Type: codec.TypeAccepted, ID: uint8(sourceID)}, nil); err != nil {
		slog.Warn("notify ACCEPTED failed", "error", err)
	}
	return state, nil
}

// localIDFor returns the local ID under which other holds inv in its own
// list. Source and target local IDs for the same Invitation are assigned
// independently (see addInvitationLocked), so any code notifying a peer must
// look up the peer's own ID rather than reuse the caller's.
func localIDFor(inv *Invitation, other *Client) int {
	other.mu.Lock()
	defer other.mu.Unlock()
	for _, li := range other.invitations {
		if li.inv == inv {
			return li.id
		}
	}
	return 0
}

// ResignGame resigns this client's side of an ACCEPTED invitation: the
// opponent wins, ratings are updated, and both parties are notified.
func (c *Client) ResignGame(id int) error {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if li.inv.State() != StateAccepted {
		return ErrBadState
	}

	ownRole := li.inv.RoleOf(c)
	opponent := li.inv.Source()
	if opponent == c {
		opponent = li.inv.Target()
	}
	opponentRole := li.inv.RoleOf(opponent)

	if err := li.inv.close(ownRole); err != nil {
		return err
	}

	opponentID, _ := opponent.removeInvitation(li.inv)
	c.removeInvitation(li.inv)

	if selfPlayer, oppPlayer := c.Player(), opponent.Player(); selfPlayer != nil && oppPlayer != nil {
		player.PostResult(selfPlayer, oppPlayer, player.P2Wins)
	}

	if err := opponent.Send(codec.Header{Type: codec.TypeResigned, ID: uint8(opponentID)}, nil); err != nil {
		slog.Warn("notify RESIGNED failed", "error", err)
	}

	winnerRole := opponentRole
	selfEndID := id
	if err := c.Send(codec.Header{Type: codec.TypeEnded, ID: uint8(selfEndID), Role: roleByte(winnerRole)}, nil); err != nil {
		slog.Warn("notify ENDED (self) failed", "error", err)
	}
	if err := opponent.Send(codec.Header{Type: codec.TypeEnded, ID: uint8(opponentID), Role: roleByte(winnerRole)}, nil); err != nil {
		slog.Warn("notify ENDED (opponent) failed", "error", err)
	}
	return nil
}

// MakeMove parses and applies a move in the context of this client's
// role, notifies the opponent, and — if the game ends as a result —
// posts the rating update, closes the invitation, and notifies both
// sides with ENDED.
func (c *Client) MakeMove(id int, text string) error {
	c.mu.Lock()
	li, ok := c.findLocked(id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if li.inv.State() != StateAccepted {
		return ErrBadState
	}

	g := li.inv.Game()
	if g == nil || g.Over() {
		return ErrBadState
	}

	ownRole := li.inv.RoleOf(c)
	mv, err := game.ParseMove(ownRole, text)
	if err != nil {
		return err
	}
	if err := g.ApplyMove(mv); err != nil {
		return err
	}

	opponent := li.inv.Source()
	if opponent == c {
		opponent = li.inv.Target()
	}
	opponentID := localIDFor(li.inv, opponent)

	movedPayload := "\n" + g.UnparseState()
	if !g.Over() {
		movedPayload += "\n" + g.Turn().String() + " to move\n"
	}
	if err := opponent.Send(codec.Header{Type: codec.TypeMoved, ID: uint8(opponentID)}, []byte(movedPayload)); err != nil {
		slog.Warn("notify MOVED failed", "error", err)
	}

	if !g.Over() {
		return nil
	}

	winner := g.Winner()
	if selfPlayer, oppPlayer := c.Player(), opponent.Player(); selfPlayer != nil && oppPlayer != nil {
		outcome := player.Draw
		switch winner {
		case ownRole:
			outcome = player.P1Wins
		case game.RoleNone:
			outcome = player.Draw
		default:
			outcome = player.P2Wins
		}
		player.PostResult(selfPlayer, oppPlayer, outcome)
	}

	if err := li.inv.close(game.RoleNone); err != nil {
		slog.Warn("closing naturally-ended invitation failed", "error", err)
	}
	opponent.removeInvitation(li.inv)
	c.removeInvitation(li.inv)

	if err := c.Send(codec.Header{Type: codec.TypeEnded, ID: uint8(id), Role: roleByte(winner)}, nil); err != nil {
		slog.Warn("notify ENDED (self) failed", "error", err)
	}
	if err := opponent.Send(codec.Header{Type: codec.TypeEnded, ID: uint8(opponentID), Role: roleByte(winner)}, nil); err != nil {
		slog.Warn("notify ENDED (opponent) failed", "error", err)
	}
	return nil
}

func roleByte(r game.Role) uint8 {
	switch r {
	case game.RoleFirst:
		return codec.RoleFirst
	case game.RoleSecond:
		return codec.RoleSecond
	default:
		return codec.RoleNone
	}
}
