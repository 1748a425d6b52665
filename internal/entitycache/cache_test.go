package entitycache

import (
	"testing"
	"time"
)

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	c := New[string](2, time.Hour)
	c.Set("a", "A")
	c.Set("b", "B")
	c.Set("c", "C")

	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have been evicted as LRU")
	}
	if v, ok := c.Get("b"); !ok || v != "B" {
		t.Fatalf("b = (%q, %v), want hit", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != "C" {
		t.Fatalf("c = (%q, %v), want hit", v, ok)
	}
}

func TestGetPromotesAgainstEviction(t *testing.T) {
	t.Parallel()
	c := New[string](2, time.Hour)
	c.Set("a", "A")
	c.Set("b", "B")
	// Touch a between the b and c insertions: b becomes the LRU victim.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	c.Set("c", "C")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted after a was promoted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
}

func TestTTLExpiryTreatsEntryAsAbsent(t *testing.T) {
	t.Parallel()
	c := New[int](4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(time.Minute) // exactly TTL old

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry should be absent")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, expired entry not evicted", c.Len())
	}

	// A fresh Set makes it resolvable again.
	c.Set("k", 2)
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Fatalf("k = (%d, %v) after re-set", v, ok)
	}
}

func TestOverwriteResetsAge(t *testing.T) {
	t.Parallel()
	c := New[int](4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	now = now.Add(50 * time.Second)
	c.Set("k", 2)
	now = now.Add(30 * time.Second) // 80s after first insert, 30s after overwrite

	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Fatalf("k = (%d, %v), want fresh overwrite to survive", v, ok)
	}
}

func TestCapacityStaysBounded(t *testing.T) {
	t.Parallel()
	c := New[int](8, time.Hour)
	for i := 0; i < 100; i++ {
		c.Set(string(rune('a'+i%26))+string(rune('0'+i/26)), i)
	}
	if c.Len() > 8 {
		t.Fatalf("Len = %d, want <= 8", c.Len())
	}
}
