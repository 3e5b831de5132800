package cache

import (
	"testing"
	"time"
)

func TestStore_GetSet(t *testing.T) {
	s := New[[]string](time.Minute)

	if _, ok := s.Get("assets"); ok {
		t.Fatal("expected miss on empty cache")
	}

	s.Set("assets", []string{"a", "b"})
	got, ok := s.Get("assets")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(got) != 2 || got[0] != "a" {
		t.Errorf("unexpected value: %v", got)
	}
}

func TestStore_Expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := New(time.Minute, WithClock[int](clock))

	s.Set("k", 42)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(61 * time.Second)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestStore_SetReplacesWholesale(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := New(time.Minute, WithClock[[]int](clock))

	s.Set("k", []int{1})
	now = now.Add(59 * time.Second)
	s.Set("k", []int{2, 3})

	// The refresh resets the expiry window.
	now = now.Add(30 * time.Second)
	got, ok := s.Get("k")
	if !ok {
		t.Fatal("expected hit inside refreshed window")
	}
	if len(got) != 2 {
		t.Errorf("expected replaced value, got %v", got)
	}
}

func TestStore_Invalidate(t *testing.T) {
	s := New[string](time.Minute)
	s.Set("k", "v")
	s.Invalidate("k")
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after Invalidate")
	}
}
