package cache

import (
	"sync"
	"testing"

	"github.com/gocacheproxy/proxy/internal/logging"
	"github.com/gocacheproxy/proxy/internal/metrics"
)

func newTestCache(maxTotal, maxElement int) *Cache {
	return New(maxTotal, maxElement, logging.NewNop(), metrics.NewNop())
}

// TestGetMiss verifies a lookup against an empty cache reports a miss.
func TestGetMiss(t *testing.T) {
	c := newTestCache(1024, 256)

	if _, _, ok := c.Get("http://example.com/"); ok {
		t.Error("expected miss on empty cache")
	}
}

// TestPutThenGet verifies a value admitted by Put is returned verbatim by a
// subsequent Get, and that the returned slice is a copy, not an alias of the
// stored payload.
func TestPutThenGet(t *testing.T) {
	c := newTestCache(1024, 256)
	want := []byte("hello world")

	c.Put("http://example.com/", want, len(want))

	got, size, ok := c.Get("http://example.com/")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if size != len(want) {
		t.Errorf("size = %d, want %d", size, len(want))
	}
	if string(got) != string(want) {
		t.Errorf("data = %q, want %q", got, want)
	}

	got[0] = 'X'
	got2, _, _ := c.Get("http://example.com/")
	if got2[0] == 'X' {
		t.Error("Get returned an alias of the stored payload, not a copy")
	}
}

// TestPutOversizeRejected verifies an entry larger than maxElementSize is
// silently rejected and never becomes visible to Get.
func TestPutOversizeRejected(t *testing.T) {
	c := newTestCache(1024, 8)
	data := []byte("this payload exceeds the per-element budget")

	c.Put("http://example.com/big", data, len(data))

	if _, _, ok := c.Get("http://example.com/big"); ok {
		t.Error("expected oversize entry to be rejected")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

// TestEvictionOrder verifies that once the aggregate budget is exceeded, the
// least-recently-used entry is evicted first, and that touching an entry
// with Get protects it from the next eviction.
func TestEvictionOrder(t *testing.T) {
	c := newTestCache(30, 30)

	c.Put("a", []byte("0123456789"), 10) // a: MRU
	c.Put("b", []byte("0123456789"), 10) // b: MRU, a pushed back
	c.Put("c", []byte("0123456789"), 10) // c: MRU, total = 30, at budget

	// Touch a so b becomes the LRU entry.
	if _, _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}

	// Adding d (10 bytes) must evict exactly one entry to stay within the
	// 30-byte budget; b is LRU after the Get(a) above.
	c.Put("d", []byte("0123456789"), 10)

	if _, _, ok := c.Get("b"); ok {
		t.Error("expected b to have been evicted as least-recently-used")
	}
	if _, _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, _, ok := c.Get("c"); !ok {
		t.Error("expected c to survive eviction")
	}
	if _, _, ok := c.Get("d"); !ok {
		t.Error("expected d to have been admitted")
	}
	if c.CurrentSize() > 30 {
		t.Errorf("CurrentSize() = %d, exceeds budget of 30", c.CurrentSize())
	}
}

// TestPutReplacesExisting verifies re-putting an existing key replaces its
// payload in place and promotes it to most-recently-used, without double
// counting its size against the budget.
func TestPutReplacesExisting(t *testing.T) {
	c := newTestCache(100, 100)

	c.Put("k", []byte("0123456789"), 10)
	c.Put("k", []byte("abcde"), 5)

	if c.CurrentSize() != 5 {
		t.Errorf("CurrentSize() = %d, want 5", c.CurrentSize())
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	got, _, ok := c.Get("k")
	if !ok || string(got) != "abcde" {
		t.Errorf("Get(k) = %q, %v, want \"abcde\", true", got, ok)
	}
}

// TestDestroyEmptiesCache verifies Destroy drops every resident entry and
// resets the size accounting.
func TestDestroyEmptiesCache(t *testing.T) {
	c := newTestCache(100, 100)
	c.Put("k", []byte("12345"), 5)

	c.Destroy()

	if c.currentSize != 0 {
		t.Errorf("currentSize after Destroy = %d, want 0", c.currentSize)
	}
	if c.head.next != c.tail {
		t.Error("expected empty list after Destroy")
	}
}

// TestConcurrentAccess exercises Get and Put from many goroutines at once;
// it is a race-detector regression test for the read-then-upgrade locking
// pattern in Get, not a correctness oracle on final cache contents.
func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(4096, 256)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Put(keyFor(i), []byte("payload"), len("payload"))
		}(i)
		go func(i int) {
			defer wg.Done()
			c.Get(keyFor(i))
		}(i)
	}
	wg.Wait()
}

func keyFor(i int) string {
	return "http://example.com/" + string(rune('a'+i%26))
}
