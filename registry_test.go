package quorumlog

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistryCursorFor(t *testing.T) {
	r := newRegistry(2)
	start := func() uint64 { return 7 }

	a, created, err := r.cursorFor("a", start)
	if err != nil || !created {
		t.Fatalf("expected a to be created, got created=%v err=%v", created, err)
	}
	if a.next.Load() != 7 {
		t.Fatalf("expected cursor at 7, got %d", a.next.Load())
	}

	again, created, err := r.cursorFor("a", start)
	if err != nil || created || again != a {
		t.Fatalf("expected the existing cursor for a, got created=%v err=%v", created, err)
	}

	if _, _, err := r.cursorFor("b", start); err != nil {
		t.Fatalf("registering b: %v", err)
	}
	if _, _, err := r.cursorFor("c", start); !errors.Is(err, ErrTooManyReaders) {
		t.Fatalf("expected ErrTooManyReaders, got %v", err)
	}
	if r.len() != 2 {
		t.Fatalf("expected 2 readers, got %d", r.len())
	}

	if !r.remove("a") {
		t.Fatalf("expected a to be removed")
	}
	c, created, err := r.cursorFor("c", start)
	if err != nil || !created {
		t.Fatalf("expected c to take the freed seat, got created=%v err=%v", created, err)
	}
	if c.seat != a.seat {
		t.Fatalf("expected c to reuse seat %d, got %d", a.seat, c.seat)
	}
}

// Many goroutines racing to register the same identities end up sharing one
// cursor per identity. Exactly as many identities as seats register, and an
// identity that got a seat is never refused on any of its goroutines.
func TestRegistryConcurrentRegistration(t *testing.T) {
	const (
		seats   = 4
		ids     = 8
		workers = 32
	)

	r := newRegistry(seats)
	start := func() uint64 { return 0 }

	var (
		mu      sync.Mutex
		cursors = make(map[ReaderID]*cursor)
		refused = make(map[ReaderID]int)
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			id := ReaderID(fmt.Sprintf("id-%d", w%ids))
			c, _, err := r.cursorFor(id, start)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, ErrTooManyReaders) {
					t.Errorf("unexpected error: %v", err)
				}
				refused[id]++
				return
			}
			if prev, ok := cursors[id]; ok && prev != c {
				t.Errorf("%s registered twice", id)
			}
			cursors[id] = c
		}(w)
	}
	wg.Wait()

	if len(cursors) != min(ids, seats) {
		t.Fatalf("expected %d registered identities, got %d", min(ids, seats), len(cursors))
	}
	if r.len() != len(cursors) {
		t.Fatalf("expected registry length %d, got %d", len(cursors), r.len())
	}
	for id, n := range refused {
		if _, ok := cursors[id]; ok {
			t.Fatalf("%s is registered but was refused %d times", id, n)
		}
	}
}

// A goroutine registering an identity that another goroutine is still
// registering joins that registration instead of being refused, even when
// the first one holds the last seat.
func TestRegistrySameIdentityDuringRegistration(t *testing.T) {
	r := newRegistry(1)

	entered := make(chan struct{})
	release := make(chan struct{})
	slowStart := func() uint64 {
		close(entered)
		<-release
		return 0
	}

	type result struct {
		c   *cursor
		err error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		c, _, err := r.cursorFor("only", slowStart)
		first <- result{c, err}
	}()

	<-entered
	go func() {
		c, _, err := r.cursorFor("only", func() uint64 { return 0 })
		second <- result{c, err}
	}()
	// let the second call reach the miss path while the first is paused
	time.Sleep(10 * time.Millisecond)
	close(release)

	a, b := <-first, <-second
	if a.err != nil || b.err != nil {
		t.Fatalf("expected both registrations to succeed, got %v and %v", a.err, b.err)
	}
	if a.c != b.c {
		t.Fatalf("expected one shared cursor for the identity")
	}
	if r.len() != 1 {
		t.Fatalf("expected 1 registered reader, got %d", r.len())
	}
}
