package cache

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheGetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("expected a=1, got %q %v", v, ok)
	}

	// "b" is now least recently used and gets evicted
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}

	c.Set("a", "updated")
	if v, _ := c.Get("a"); v != "updated" {
		t.Fatalf("expected updated value, got %q", v)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be deleted")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clock.t = clock.t.Add(30 * time.Second)
	c.Set("c", "3")

	clock.t = clock.t.Add(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 more expired entry, got %d", n)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Fatalf("expected c to survive, got %q %v", v, ok)
	}
}

func TestLRUCacheGetOrLoad(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	calls := 0
	load := func() (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		if err != nil || v != "loaded" {
			t.Fatalf("unexpected result %q %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad("bad", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Fatalf("errors must not be cached")
	}
}

func TestLRUCacheGetOrLoadInvalidatedDuringLoad(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	v, err := c.GetOrLoad("k", func() (string, error) {
		c.Clear()
		return "before", nil
	})
	if err != nil || v != "before" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("a load overlapping Clear must not be cached")
	}

	_, _ = c.GetOrLoad("k", func() (string, error) {
		c.Delete("other")
		return "before", nil
	})
	if _, ok := c.Get("k"); ok {
		t.Fatalf("a load overlapping Delete must not be cached")
	}

	v, _ = c.GetOrLoad("k", func() (string, error) { return "after", nil })
	if got, ok := c.Get("k"); !ok || got != "after" || v != "after" {
		t.Fatalf("expected fresh value cached, got %q %v", got, ok)
	}
}

func TestManagerCleanNowAndStop(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")

	m := NewManager()
	m.Register(c)
	m.StartCleanup(time.Hour)

	clock.t = clock.t.Add(2 * time.Minute)
	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}

	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
}
