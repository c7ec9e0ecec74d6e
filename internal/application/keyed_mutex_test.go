package application

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
		active  int
		maxSeen int
		guard   sync.Mutex
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("acct-1")
			defer unlock()

			guard.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			guard.Unlock()

			counter++

			guard.Lock()
			active--
			guard.Unlock()
		}()
	}
	wg.Wait()

	if counter != 32 {
		t.Fatalf("expected 32 increments, got %d", counter)
	}
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
	if km.size() != 0 {
		t.Fatalf("expected entries to be released, %d remain", km.size())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
