package socks5

import (
	"net"
	"testing"
)

func newTestSession() *Session {
	server := &Server{cfg: ServerConfig{BufferSize: 1024}}
	client, _ := net.Pipe()
	return newSession(server, client)
}

func TestSessionTracker_AddRemove(t *testing.T) {
	tracker := newSessionTracker()
	s := newTestSession()

	tracker.add(s)
	if tracker.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", tracker.Count())
	}

	tracker.remove(s)
	if tracker.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", tracker.Count())
	}
}

func TestSessionTracker_RemoveIsIdempotent(t *testing.T) {
	tracker := newSessionTracker()
	s := newTestSession()

	tracker.add(s)
	tracker.remove(s)
	tracker.remove(s) // should not panic or go negative

	if tracker.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", tracker.Count())
	}
}

func TestSessionTracker_CloseAll(t *testing.T) {
	tracker := newSessionTracker()
	sessions := []*Session{newTestSession(), newTestSession(), newTestSession()}
	for _, s := range sessions {
		tracker.add(s)
	}

	tracker.closeAll()

	if tracker.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after closeAll", tracker.Count())
	}
	for _, s := range sessions {
		if _, err := s.client.Write([]byte("x")); err == nil {
			t.Error("expected write to closed client conn to fail")
		}
	}
}
