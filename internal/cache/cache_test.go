package cache

import (
	"testing"
	"time"
)

func TestGetMissingKey(t *testing.T) {
	c := New()
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("endpoints:prod", []int{1, 2, 3}, time.Minute)

	v, ok := c.Get("endpoints:prod")
	if !ok {
		t.Fatal("expected hit")
	}
	if got := v.([]int); len(got) != 3 {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	c.Set("short", "value", time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, have %d entries", c.Len())
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New()
	c.Set("forever", 42, 0)

	time.Sleep(2 * time.Millisecond)
	if _, ok := c.Get("forever"); !ok {
		t.Fatal("zero ttl entry must not expire")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key still present")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear, have %d", c.Len())
	}
}
