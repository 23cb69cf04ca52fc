// Package session implements the per-connection dispatch loop: read a
// frame, route it to a Client operation, reply with ACK or NACK.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/udisondev/tttserver/internal/client"
	"github.com/udisondev/tttserver/internal/codec"
	"github.com/udisondev/tttserver/internal/game"
	"github.com/udisondev/tttserver/internal/player"
	"github.com/udisondev/tttserver/internal/registry"
)

// Loop reads and dispatches frames for c until the connection fails or
// is half-closed by a shutdown, then logs out (if needed) and
// unregisters c. It returns nothing; failures are logged, not
// propagated, since each connection is handled independently.
func Loop(c *client.Client, clients *registry.Registry, players *player.Registry) {
	defer finish(c, clients)

	for {
		hdr, payload, err := codec.Recv(c.Conn())
		if err != nil {
			if !errors.Is(err, codec.ErrEOF) {
				slog.Debug("session: transport error", "error", err)
			}
			return
		}

		replyHdr, replyPayload, ok := dispatch(c, clients, players, hdr, payload)
		if err := c.Send(replyHdr, replyPayload); err != nil {
			slog.Debug("session: reply send failed", "error", err)
			return
		}
		_ = ok
	}
}

func finish(c *client.Client, clients *registry.Registry) {
	if c.LoggedIn() {
		if err := c.Logout(); err != nil {
			slog.Debug("session: logout on exit failed", "error", err)
		}
	}
	if err := c.Close(); err != nil {
		slog.Debug("session: close on exit failed", "error", err)
	}
	clients.Unregister(c)
}

// dispatch routes one frame to the matching Client operation and
// builds the ACK/NACK reply. The bool return reports success, purely
// for the caller's own diagnostics; the wire contract is carried
// entirely by replyHdr.Type.
func dispatch(c *client.Client, clients *registry.Registry, players *player.Registry, hdr codec.Header, payload []byte) (codec.Header, []byte, bool) {
	switch hdr.Type {
	case codec.TypeLogin:
		return handleLogin(c, clients, players, hdr, payload)
	case codec.TypeUsers:
		return handleUsers(c, clients, hdr)
	case codec.TypeInvite:
		return handleInvite(c, clients, hdr, payload)
	case codec.TypeRevoke:
		return handleRevoke(c, hdr)
	case codec.TypeDecline:
		return handleDecline(c, hdr)
	case codec.TypeAccept:
		return handleAccept(c, hdr)
	case codec.TypeMove:
		return handleMove(c, hdr, payload)
	case codec.TypeResign:
		return handleResign(c, hdr)
	default:
		slog.Debug("session: unknown frame type", "type", hdr.Type)
		return nack(hdr), nil, false
	}
}

func ack(hdr codec.Header, payload []byte) (codec.Header, []byte, bool) {
	return codec.Header{Type: codec.TypeAck, ID: hdr.ID, Role: hdr.Role}, payload, true
}

func nack(hdr codec.Header) codec.Header {
	return codec.Header{Type: codec.TypeNack, ID: hdr.ID, Role: hdr.Role}
}

func handleLogin(c *client.Client, clients *registry.Registry, players *player.Registry, hdr codec.Header, payload []byte) (codec.Header, []byte, bool) {
	if c.LoggedIn() {
		return nack(hdr), nil, false
	}
	name := string(payload)
	if name == "" {
		return nack(hdr), nil, false
	}
	if existing, err := clients.Lookup(name); err == nil {
		existing.Release()
		return nack(hdr), nil, false
	}
	p := players.Register(name)
	if err := c.Login(p); err != nil {
		p.Release()
		return nack(hdr), nil, false
	}
	return ack(hdr, nil)
}

func handleUsers(c *client.Client, clients *registry.Registry, hdr codec.Header) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	var b strings.Builder
	for _, p := range clients.SnapshotPlayers() {
		fmt.Fprintf(&b, "%s\t%d\n", p.Name(), p.Rating())
		p.Release()
	}
	return ack(hdr, []byte(b.String()))
}

func handleInvite(c *client.Client, clients *registry.Registry, hdr codec.Header, payload []byte) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	target, err := clients.Lookup(string(payload))
	if err != nil {
		return nack(hdr), nil, false
	}
	defer target.Release()

	targetRole := game.RoleSecond
	if hdr.Role == codec.RoleFirst {
		targetRole = game.RoleFirst
	}
	sourceRole := targetRole.Other()

	id, err := c.MakeInvitation(target, sourceRole, targetRole)
	if err != nil {
		return nack(hdr), nil, false
	}
	return ack(codec.Header{ID: uint8(id)}, nil)
}

func handleRevoke(c *client.Client, hdr codec.Header) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	if err := c.RevokeInvitation(int(hdr.ID)); err != nil {
		return nack(hdr), nil, false
	}
	return ack(hdr, nil)
}

func handleDecline(c *client.Client, hdr codec.Header) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	if err := c.DeclineInvitation(int(hdr.ID)); err != nil {
		return nack(hdr), nil, false
	}
	return ack(hdr, nil)
}

func handleAccept(c *client.Client, hdr codec.Header) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	state, err := c.AcceptInvitation(int(hdr.ID))
	if err != nil {
		return nack(hdr), nil, false
	}
	return ack(hdr, []byte(state))
}

func handleMove(c *client.Client, hdr codec.Header, payload []byte) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	if err := c.MakeMove(int(hdr.ID), string(payload)); err != nil {
		return nack(hdr), nil, false
	}
	return ack(hdr, nil)
}

func handleResign(c *client.Client, hdr codec.Header) (codec.Header, []byte, bool) {
	if !c.LoggedIn() {
		return nack(hdr), nil, false
	}
	if err := c.ResignGame(int(hdr.ID)); err != nil {
		return nack(hdr), nil, false
	}
	return ack(hdr, nil)
}
