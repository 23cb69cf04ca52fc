// Package game implements the 3x3 Tic-Tac-Toe board: move parsing,
// move application, and win/draw detection.
package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Role identifies which mark a player is placing.
type Role uint8

const (
	RoleNone Role = iota
	RoleFirst
	RoleSecond
)

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "X"
	case RoleSecond:
		return "O"
	default:
		return "-"
	}
}

// Other returns the opposing role; RoleNone maps to itself.
func (r Role) Other() Role {
	switch r {
	case RoleFirst:
		return RoleSecond
	case RoleSecond:
		return RoleFirst
	default:
		return RoleNone
	}
}

// Errors returned by move parsing and application.
var (
	ErrInvalidMove = errors.New("game: invalid move text")
	ErrIllegalMove = errors.New("game: illegal move")
	ErrGameOver    = errors.New("game: already over")
)

// Move is a parsed, not-yet-applied instruction: place piece at Cell
// (0-indexed board position) as Role.
type Move struct {
	Cell int
	Role Role
}

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Game is a single 3x3 board. All operations are safe for concurrent use.
type Game struct {
	mu     sync.Mutex
	cells  [9]Role
	turn   Role
	over   bool
	winner Role
}

// New creates a fresh board with FIRST to move.
func New() *Game {
	return &Game{turn: RoleFirst}
}

// ParseMove parses a short ASCII move of the form "<cell>" or
// "<cell><sep><piece>" where cell is 1..9 and piece is one of X/O/x/o.
// If a piece is present it must agree with role; a mismatched piece is
// rejected here rather than silently corrected.
func ParseMove(role Role, text string) (Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Move{}, ErrInvalidMove
	}

	digitEnd := 0
	for digitEnd < len(text) && text[digitEnd] >= '0' && text[digitEnd] <= '9' {
		digitEnd++
	}
	if digitEnd == 0 {
		return Move{}, ErrInvalidMove
	}

	cellNum := 0
	for _, c := range text[:digitEnd] {
		cellNum = cellNum*10 + int(c-'0')
	}
	if cellNum < 1 || cellNum > 9 {
		return Move{}, ErrInvalidMove
	}

	rest := text[digitEnd:]
	moveRole := role
	if rest != "" {
		// Skip a single separator (any character other than a piece
		// letter), if present.
		if !isPieceRune(rest[0]) {
			rest = rest[1:]
		}
		if rest == "" {
			return Move{}, ErrInvalidMove
		}
		if len(rest) != 1 || !isPieceRune(rest[0]) {
			return Move{}, ErrInvalidMove
		}
		parsedRole, err := pieceToRole(rest[0])
		if err != nil {
			return Move{}, err
		}
		if parsedRole != role {
			return Move{}, ErrInvalidMove
		}
		moveRole = parsedRole
	}

	return Move{Cell: cellNum - 1, Role: moveRole}, nil
}

func isPieceRune(b byte) bool {
	switch b {
	case 'X', 'x', 'O', 'o':
		return true
	default:
		return false
	}
}

func pieceToRole(b byte) (Role, error) {
	switch b {
	case 'X', 'x':
		return RoleFirst, nil
	case 'O', 'o':
		return RoleSecond, nil
	default:
		return RoleNone, ErrInvalidMove
	}
}

// UnparseMove renders a Move back to its canonical text form, e.g. "5X".
func UnparseMove(m Move) string {
	return fmt.Sprintf("%d%s", m.Cell+1, m.Role)
}

// ApplyMove places a piece on the board. It fails with ErrGameOver if the
// game has ended, or ErrIllegalMove if the cell is occupied or the move's
// piece does not match the side to move. On success it flips turn and
// updates over/winner.
func (g *Game) ApplyMove(m Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return ErrGameOver
	}
	if m.Cell < 0 || m.Cell > 8 {
		return ErrIllegalMove
	}
	if g.cells[m.Cell] != RoleNone {
		return ErrIllegalMove
	}
	if m.Role != g.turn {
		return ErrIllegalMove
	}

	g.cells[m.Cell] = m.Role
	g.turn = g.turn.Other()

	if winner := g.checkWinnerLocked(); winner != RoleNone {
		g.over = true
		g.winner = winner
		return nil
	}
	if g.boardFullLocked() {
		g.over = true
		g.winner = RoleNone
	}
	return nil
}

func (g *Game) checkWinnerLocked() Role {
	for _, line := range winLines {
		a, b, c := g.cells[line[0]], g.cells[line[1]], g.cells[line[2]]
		if a != RoleNone && a == b && b == c {
			return a
		}
	}
	return RoleNone
}

func (g *Game) boardFullLocked() bool {
	for _, c := range g.cells {
		if c == RoleNone {
			return false
		}
	}
	return true
}

// Resign ends the game in favor of role's opponent. Fails if the game is
// already over.
func (g *Game) Resign(role Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.over {
		return ErrGameOver
	}
	g.over = true
	g.winner = role.Other()
	return nil
}

// Over reports whether the game has ended.
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

// Winner returns the winning role, or RoleNone for a draw or in-progress
// game.
func (g *Game) Winner() Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// Turn returns the role to move.
func (g *Game) Turn() Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

// UnparseState renders a 5-line ASCII board: cells separated by "|",
// rows separated by a "-----" line, empty cells rendered as a space.
func (g *Game) UnparseState() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("-----\n")
		}
		for col := 0; col < 3; col++ {
			cell := g.cells[row*3+col]
			if cell == RoleNone {
				b.WriteByte(' ')
			} else {
				b.WriteString(cell.String())
			}
			if col < 2 {
				b.WriteByte('|')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
