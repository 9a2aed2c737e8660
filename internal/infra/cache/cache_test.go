package cache_test

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/boddenberg/vendas-bot-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[[]float32](5*time.Minute, 0)
	defer c.Close()

	c.Set("oi", []float32{0.1, 0.2})
	val, ok := c.Get("oi")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if len(val) != 2 || val[1] != 0.2 {
		t.Errorf("unexpected value %v", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5*time.Minute, 0)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50*time.Millisecond, 0)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5*time.Minute, 0)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_MaxItems(t *testing.T) {
	c := cache.New[int](5*time.Minute, 2)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("expected the newest entry to be kept")
	}

	// Overwriting an existing key never evicts.
	c.Set("c", 30)
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries after overwrite, got %d", c.Len())
	}
}

func TestCache_CloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := cache.New[string](10*time.Millisecond, 0)
	c.Set("k", "v")
	c.Close()
	c.Close()
}
