package history

import (
	"sync"
	"testing"
	"time"
)

func TestAppendAndListOrder(t *testing.T) {
	s := NewStore()
	a := s.Append(Entry{Filename: "a.flac", Prediction: "Real Human Voice"})
	b := s.Append(Entry{Filename: "b.flac", Prediction: "DeepFake AI Voice"})
	c := s.Append(Entry{Filename: "c.flac", Prediction: "Real Human Voice"})

	if a.ID == "" || a.ID == b.ID || b.ID == c.ID {
		t.Fatalf("IDs not unique: %q %q %q", a.ID, b.ID, c.ID)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	want := []string{"c.flac", "b.flac", "a.flac"}
	for i, w := range want {
		if list[i].Filename != w {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Filename, w)
		}
	}

	list[0].Filename = "mutated"
	if s.List()[0].Filename != "c.flac" {
		t.Error("List must return a copy")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := NewStore()
	a := s.Append(Entry{Filename: "a.flac"})
	b := s.Append(Entry{Filename: "b.flac"})

	if !s.Delete(a.ID) {
		t.Fatal("first delete should succeed")
	}
	if s.Delete(a.ID) {
		t.Error("second delete should report nothing removed")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if _, ok := s.Get(b.ID); !ok {
		t.Error("unrelated entry removed")
	}
	if s.Delete("unknown") {
		t.Error("unknown id deleted")
	}
}

func TestStoreConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Entry{Filename: "x.flac"})
		}()
	}
	wg.Wait()
	if s.Len() != 50 {
		t.Errorf("Len = %d, want 50", s.Len())
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(time.Hour)
	id := m.Create()

	st, ok := m.Get(id)
	if !ok {
		t.Fatal("created session not found")
	}
	st.Append(Entry{Filename: "a.flac"})

	again, _ := m.Get(id)
	if again.Len() != 1 {
		t.Error("Get returned a different store")
	}

	if !m.Drop(id) {
		t.Fatal("Drop failed")
	}
	if m.Drop(id) {
		t.Error("second Drop should fail")
	}
	if _, ok := m.Get(id); ok {
		t.Error("dropped session still visible")
	}
}

func TestManagerSessionsAreIsolated(t *testing.T) {
	m := NewManager(0)
	a, _ := m.Get(m.Create())
	b, _ := m.Get(m.Create())

	a.Append(Entry{Filename: "a.flac"})
	if b.Len() != 0 {
		t.Error("entries leaked between sessions")
	}
}

func TestGetOrCreate(t *testing.T) {
	m := NewManager(0)
	if _, ok := m.GetOrCreate("not-a-uuid"); ok {
		t.Error("invalid id accepted")
	}
	id := "6f1d6a2e-3c3b-4c59-9d7e-0f6a1c1f7b11"
	st, ok := m.GetOrCreate(id)
	if !ok || st == nil {
		t.Fatal("valid id rejected")
	}
	again, _ := m.GetOrCreate(id)
	if st != again {
		t.Error("GetOrCreate made a second store")
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(30 * time.Minute)
	m.now = func() time.Time { return clock }

	idle := m.Create()
	clock = clock.Add(20 * time.Minute)
	active := m.Create()

	clock = clock.Add(15 * time.Minute)
	if n := m.Sweep(clock); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, ok := m.Get(idle); ok {
		t.Error("idle session survived")
	}
	if _, ok := m.Get(active); !ok {
		t.Error("active session expired")
	}
}
