package undo

import (
	"testing"
	"time"
)

func TestPushAssignsSequence(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxDepth: 10})
	a := m.Push(Snapshot{Session: "s", Blob: []byte("a"), Input: NoInput})
	b := m.Push(Snapshot{Session: "s", Blob: []byte("b"), Input: 1})
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("unexpected sequence numbers %d, %d", a.Seq, b.Seq)
	}
	if _, sessions, total, _ := m.Stats(); sessions != 1 || total != 2 {
		t.Fatalf("expected 1 session and 2 snapshots, got sessions=%d total=%d", sessions, total)
	}
	s, ok := m.Pop("s")
	if !ok || string(s.Blob) != "b" || s.Input != 1 {
		t.Fatalf("pop expected 'b', got ok=%v %+v", ok, s)
	}
}

func TestBackSkipsCurrentStep(t *testing.T) {
	m := NewManager(Config{})
	m.Push(Snapshot{Session: "s", Blob: []byte("1"), Input: NoInput})
	if _, ok := m.Back("s"); ok {
		t.Fatalf("back needs two snapshots")
	}
	if m.Len("s") != 1 {
		t.Fatalf("failed back must not drop snapshots")
	}
	m.Push(Snapshot{Session: "s", Blob: []byte("2"), Input: 0})
	m.Push(Snapshot{Session: "s", Blob: []byte("3"), Input: NoInput})
	s, ok := m.Back("s")
	if !ok || string(s.Blob) != "2" || s.Input != 0 {
		t.Fatalf("back expected '2', got ok=%v %+v", ok, s)
	}
	if m.Len("s") != 1 {
		t.Fatalf("expected one snapshot left, got %d", m.Len("s"))
	}
	if tb, _, _, _ := m.Stats(); tb != 1 {
		t.Fatalf("byte accounting off: %d", tb)
	}
}

func TestDepthCap(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxDepth: 2})
	for i := 0; i < 10; i++ {
		m.Push(Snapshot{Session: "s", Blob: []byte("xxxxx")})
	}
	_, _, total, dropped := m.Stats()
	if total != 2 || dropped != 8 {
		t.Fatalf("expected depth cap to keep 2 and drop 8, got %d and %d", total, dropped)
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024})
	m.Push(Snapshot{Session: "a.lex", Blob: []byte("abcdef")})
	tb, sessions, total, _ := m.Stats()
	if tb == 0 || sessions != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d sessions=%d total=%d", tb, sessions, total)
	}
	m.Clear("a.lex")
	tb, sessions, total, _ = m.Stats()
	if tb != 0 || sessions != 0 || total != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d sessions=%d total=%d", tb, sessions, total)
	}
	if s := m.Push(Snapshot{Session: "a.lex"}); s.Seq != 1 {
		t.Fatalf("sequence must restart after clear, got %d", s.Seq)
	}
}

func TestGlobalPruneAcrossSessions(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8})
	t0 := time.Now()
	m.Push(Snapshot{Session: "one", Blob: []byte("xxxx"), TS: t0})
	m.Push(Snapshot{Session: "two", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	m.Push(Snapshot{Session: "two", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})

	if m.Len("one") != 0 {
		t.Fatalf("expected the oldest session snapshot to be pruned")
	}
	if m.Len("two") != 2 {
		t.Fatalf("expected session two to keep both snapshots, got %d", m.Len("two"))
	}
}
