package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSet_RoundTrip(t *testing.T) {
	c := New[string, int](10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("k", 42)
	got, ok := c.Get("k")
	if !ok || got != 42 {
		t.Fatalf("Get(k) = %d, %v, want 42, true", got, ok)
	}
}

func TestGet_ExpiredEntryIsMiss(t *testing.T) {
	c := New[string, int](10, 10*time.Millisecond)
	c.Set("k", 1)

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after expired read", c.Len())
	}
}

func TestSet_EvictsWhenFull(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	// "a" was stored first, so it expires first and is the eviction victim.
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected newest entry to survive")
	}
}

func TestSet_OverwriteDoesNotEvict(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	got, _ := c.Get("a")
	if got != 10 {
		t.Fatalf("Get(a) = %d, want 10", got)
	}
}

func TestGetOrLoad_CachesResult(t *testing.T) {
	c := New[string, int](10, time.Minute)
	calls := 0

	for i := 0; i < 3; i++ {
		got, err := c.GetOrLoad("k", func() (int, error) {
			calls++
			return 7, nil
		})
		if err != nil || got != 7 {
			t.Fatalf("GetOrLoad() = %d, %v, want 7, nil", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loadFn called %d times, want 1", calls)
	}
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[string, int](10, time.Minute)
	boom := errors.New("boom")
	calls := 0

	_, err := c.GetOrLoad("k", func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, err := c.GetOrLoad("k", func() (int, error) {
		calls++
		return 9, nil
	})
	if err != nil || got != 9 {
		t.Fatalf("GetOrLoad() after error = %d, %v, want 9, nil", got, err)
	}
	if calls != 2 {
		t.Fatalf("loadFn called %d times, want 2 (error not cached)", calls)
	}
}

func TestGetOrLoad_ConcurrentCallersShareOneLoad(t *testing.T) {
	c := New[string, int](10, time.Minute)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.GetOrLoad("k", func() (int, error) {
			calls.Add(1)
			close(started)
			<-release
			return 5, nil
		})
	}()
	<-started

	for i := 1; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrLoad("k", func() (int, error) {
				calls.Add(1)
				return -1, nil
			})
		}(i)
	}

	// Give the waiters time to park on the in-progress load, then let it
	// finish.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("loadFn called %d times, want 1", n)
	}
	for i, r := range results {
		if r != 5 {
			t.Fatalf("results[%d] = %d, want 5", i, r)
		}
	}
}

func TestInvalidate_DropsSingleKey(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be gone")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected b to survive")
	}
}

func TestFlush_DropsEverything(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Flush()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}
