package game

import "testing"

func TestParseMoveRoundTrip(t *testing.T) {
	tests := []Move{
		{Cell: 0, Role: RoleFirst},
		{Cell: 4, Role: RoleSecond},
		{Cell: 8, Role: RoleFirst},
	}
	for _, m := range tests {
		text := UnparseMove(m)
		got, err := ParseMove(m.Role, text)
		if err != nil {
			t.Fatalf("ParseMove(%q) failed: %v", text, err)
		}
		if got != m {
			t.Errorf("round trip mismatch: got %+v, want %+v (text %q)", got, m, text)
		}
	}
}

func TestParseMove(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		text    string
		want    Move
		wantErr bool
	}{
		{name: "bare cell", role: RoleFirst, text: "5", want: Move{Cell: 4, Role: RoleFirst}},
		{name: "cell with piece", role: RoleFirst, text: "1X", want: Move{Cell: 0, Role: RoleFirst}},
		{name: "lowercase piece", role: RoleSecond, text: "9o", want: Move{Cell: 8, Role: RoleSecond}},
		{name: "separator space", role: RoleFirst, text: "3 X", want: Move{Cell: 2, Role: RoleFirst}},
		{name: "cell zero invalid", role: RoleFirst, text: "0X", wantErr: true},
		{name: "cell ten invalid", role: RoleFirst, text: "10X", wantErr: true},
		{name: "mismatched piece", role: RoleFirst, text: "1O", wantErr: true},
		{name: "garbage", role: RoleFirst, text: "abc", wantErr: true},
		{name: "empty", role: RoleFirst, text: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMove(tt.role, tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMove(%q) = %+v, want error", tt.text, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMove(%q) failed: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("ParseMove(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestApplyMoveWin(t *testing.T) {
	g := New()
	moves := []struct {
		role Role
		cell int
	}{
		{RoleFirst, 3},  // X
		{RoleSecond, 0}, // O
		{RoleFirst, 4},  // X
		{RoleSecond, 1}, // O
		{RoleFirst, 5},  // X wins row 4-5-6 (cells 3,4,5)
	}
	for _, mv := range moves {
		if err := g.ApplyMove(Move{Cell: mv.cell, Role: mv.role}); err != nil {
			t.Fatalf("ApplyMove(%+v) failed: %v", mv, err)
		}
	}
	if !g.Over() {
		t.Fatal("expected game over")
	}
	if g.Winner() != RoleFirst {
		t.Errorf("Winner() = %v, want RoleFirst", g.Winner())
	}
}

func TestApplyMoveDraw(t *testing.T) {
	g := New()
	// X O X / X O O / O X X -> no winner, board full.
	seq := []Move{
		{0, RoleFirst}, {1, RoleSecond}, {2, RoleFirst},
		{4, RoleSecond}, {3, RoleFirst}, {5, RoleSecond},
		{7, RoleFirst}, {6, RoleSecond}, {8, RoleFirst},
	}
	for _, m := range seq {
		if err := g.ApplyMove(m); err != nil {
			t.Fatalf("ApplyMove(%+v) failed: %v", m, err)
		}
	}
	if !g.Over() || g.Winner() != RoleNone {
		t.Fatalf("expected draw, got over=%v winner=%v", g.Over(), g.Winner())
	}
}

func TestApplyMoveRejectsOccupiedCell(t *testing.T) {
	g := New()
	if err := g.ApplyMove(Move{Cell: 0, Role: RoleFirst}); err != nil {
		t.Fatalf("first move failed: %v", err)
	}
	if err := g.ApplyMove(Move{Cell: 0, Role: RoleSecond}); err != ErrIllegalMove {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
}

func TestApplyMoveRejectsWrongTurn(t *testing.T) {
	g := New()
	if err := g.ApplyMove(Move{Cell: 0, Role: RoleSecond}); err != ErrIllegalMove {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
}

func TestApplyMoveRejectsAfterOver(t *testing.T) {
	g := New()
	if err := g.Resign(RoleFirst); err != nil {
		t.Fatalf("Resign failed: %v", err)
	}
	if err := g.ApplyMove(Move{Cell: 0, Role: RoleSecond}); err != ErrGameOver {
		t.Fatalf("err = %v, want ErrGameOver", err)
	}
}

func TestResign(t *testing.T) {
	g := New()
	if err := g.Resign(RoleFirst); err != nil {
		t.Fatalf("Resign failed: %v", err)
	}
	if !g.Over() || g.Winner() != RoleSecond {
		t.Fatalf("expected SECOND to win by resignation, got over=%v winner=%v", g.Over(), g.Winner())
	}
	if err := g.Resign(RoleSecond); err != ErrGameOver {
		t.Fatalf("second Resign err = %v, want ErrGameOver", err)
	}
}

func TestUnparseStateShape(t *testing.T) {
	g := New()
	_ = g.ApplyMove(Move{Cell: 4, Role: RoleFirst})
	s := g.UnparseState()
	// 3 board rows + 2 separators = 5 lines (trailing newline produces one
	// empty element from strings.Split, not counted here).
	lines := 0
	for _, c := range s {
		if c == '\n' {
			lines++
		}
	}
	if lines != 5 {
		t.Fatalf("UnparseState produced %d lines, want 5:\n%s", lines, s)
	}
}
