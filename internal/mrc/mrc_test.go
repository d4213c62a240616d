package mrc

import (
	"context"
	"testing"
	"time"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
)

func TestNextEvictionBound(t *testing.T) {
	for _, sec := range []int64{0, 1, 100, 299, 300, 301, 3599, 7200} {
		tm := time.Unix(sec, 0)
		e := NextEviction(tm)
		d := e.Unix() - sec
		if d <= 0 || d > 300 {
			t.Fatalf("t=%d: evict delta = %d, want (0,300]", sec, d)
		}
		if e.Unix()%300 != 240 {
			t.Fatalf("t=%d: evict mod 300 = %d, want 240", sec, e.Unix()%300)
		}
	}
}

func TestRoundRobinFairness(t *testing.T) {
	store := catalog.NewStore()
	store.AssignDepotToAccount(1, 100, 1)
	store.AssignDepotToAccount(1, 100, 2)
	store.AssignDepotToAccount(1, 100, 3)

	var seq []uint64
	dial := func(steamID uint64) steamcm.Client {
		seq = append(seq, steamID)
		c := steamcm.NewFakeClient()
		c.MRCFunc = func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
			return manifestID, nil
		}
		return c
	}
	cache := NewCache(store, dial)

	for i := uint64(0); i < 9; i++ {
		if _, _, err := cache.Fetch(context.Background(), 1, 100, 1000+i); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	want := []uint64{1, 2, 3, 1, 2, 3, 1, 2, 3}
	if len(seq) != len(want) {
		t.Fatalf("seq len = %d, want %d", len(seq), len(want))
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("seq[%d] = %d, want %d (full seq %v)", i, seq[i], want[i], seq)
		}
	}
}

func TestCacheHitAvoidsCM(t *testing.T) {
	store := catalog.NewStore()
	store.AssignDepotToAccount(1, 100, 1)
	calls := 0
	dial := func(steamID uint64) steamcm.Client {
		calls++
		c := steamcm.NewFakeClient()
		c.MRCFunc = func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
			return 42, nil
		}
		return c
	}
	cache := NewCache(store, dial)

	code1, _, err := cache.Fetch(context.Background(), 1, 100, 5000)
	if err != nil || code1 != 42 {
		t.Fatalf("first fetch: code=%d err=%v", code1, err)
	}
	code2, _, err := cache.Fetch(context.Background(), 1, 100, 5000)
	if err != nil || code2 != 42 {
		t.Fatalf("second fetch: code=%d err=%v", code2, err)
	}
	if calls != 1 {
		t.Fatalf("dial called %d times, want 1 (second fetch should hit cache)", calls)
	}
}

func TestCacheCapEvictsSmallestKey(t *testing.T) {
	store := catalog.NewStore()
	store.AssignDepotToAccount(1, 100, 1)
	dial := func(steamID uint64) steamcm.Client {
		c := steamcm.NewFakeClient()
		c.MRCFunc = func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
			return manifestID, nil
		}
		return c
	}
	cache := NewCache(store, dial)

	for i := uint64(1); i <= cacheCap+1; i++ {
		if _, _, err := cache.Fetch(context.Background(), 1, 100, i); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if cache.Len() != cacheCap {
		t.Fatalf("cache len = %d, want %d", cache.Len(), cacheCap)
	}
	if _, _, ok := cache.Get(1); ok {
		t.Fatal("smallest manifest ID should have been evicted on overflow")
	}
	if _, _, ok := cache.Get(cacheCap + 1); !ok {
		t.Fatal("most recently inserted entry should still be cached")
	}
}
