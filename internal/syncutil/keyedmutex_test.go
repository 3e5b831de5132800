package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "wallet-1")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent holder, observed %d", maxActive)
	}
	if m.Len() != 0 {
		t.Errorf("expected entries cleaned up, got %d", m.Len())
	}
}

func TestKeyedMutex_DifferentKeysDoNotContend(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "wallet-a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(ctx, "wallet-b")
		if err != nil {
			t.Errorf("lock b: %v", err)
			return
		}
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancellation(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Lock(ctx, "wallet-1"); err == nil {
		t.Fatal("expected context error while lock held")
	}

	unlock()
	if m.Len() != 0 {
		t.Errorf("expected entries cleaned up after cancellation, got %d", m.Len())
	}
}
