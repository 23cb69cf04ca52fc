package registry

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/udisondev/tttserver/internal/client"
	"github.com/udisondev/tttserver/internal/player"
)

type dummyAddr struct{}

func (dummyAddr) Network() string { return "fake" }
func (dummyAddr) String() string  { return "fake" }

type fakeConn struct {
	pw          *io.PipeWriter
	pr          *io.PipeReader
	closedWrite bool
}

func newFakeClient() *client.Client {
	pr, pw := io.Pipe()
	conn := &fakeConn{pw: pw, pr: pr}
	c := client.New(conn, 8, time.Second)
	go c.Run()
	go io.Copy(io.Discard, pr)
	return c
}

func (f *fakeConn) Read(p []byte) (int, error)         { return 0, io.EOF }
func (f *fakeConn) Write(p []byte) (int, error)        { return f.pw.Write(p) }
func (f *fakeConn) Close() error                       { _ = f.pw.Close(); return f.pr.Close() }
func (f *fakeConn) CloseWrite() error                  { f.closedWrite = true; return f.pw.Close() }
func (f *fakeConn) LocalAddr() net.Addr                { return dummyAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr               { return dummyAddr{} }
func (f *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func TestRegisterUnregister(t *testing.T) {
	r := New(2)
	a := newFakeClient()
	b := newFakeClient()

	if err := r.Register(a); err != nil {
		t.Fatalf("Register(a) failed: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register(b) failed: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}

	c := newFakeClient()
	if err := r.Register(c); err != ErrFull {
		t.Fatalf("Register at capacity err = %v, want ErrFull", err)
	}

	r.Unregister(a)
	if r.Count() != 1 {
		t.Fatalf("Count() after Unregister = %d, want 1", r.Count())
	}
	// Unregistering twice is a no-op.
	r.Unregister(a)
	if r.Count() != 1 {
		t.Fatalf("Count() after double Unregister = %d, want 1", r.Count())
	}
}

func TestLookup(t *testing.T) {
	r := New(4)
	a := newFakeClient()
	if err := r.Register(a); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := r.Lookup("alice"); err != ErrNotFound {
		t.Fatalf("Lookup before login err = %v, want ErrNotFound", err)
	}

	p := player.New("alice")
	if err := a.Login(p); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	found, err := r.Lookup("alice")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	defer found.Release()
	if found != a {
		t.Fatal("Lookup returned a different client")
	}
}

func TestSnapshotPlayers(t *testing.T) {
	r := New(4)
	a := newFakeClient()
	b := newFakeClient()
	r.Register(a)
	r.Register(b)
	a.Login(player.New("alice"))
	b.Login(player.New("bob"))

	snap := r.SnapshotPlayers()
	if len(snap) != 2 {
		t.Fatalf("SnapshotPlayers() returned %d players, want 2", len(snap))
	}
	for _, p := range snap {
		p.Release()
	}
}

func TestShutdownAllWaitForEmpty(t *testing.T) {
	r := New(4)
	a := newFakeClient()
	r.Register(a)

	done := make(chan struct{})
	go func() {
		r.WaitForEmpty()
		close(done)
	}()

	r.ShutdownAll()
	// Simulate the session loop observing EOF after the half-close and
	// unregistering itself.
	r.Unregister(a)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty did not return after last client unregistered")
	}

	if err := r.Register(newFakeClient()); err != ErrFull {
		t.Fatalf("Register after shutdown err = %v, want ErrFull", err)
	}
}
