package store_test

import (
	"testing"
	"time"

	"pulseboard/internal/models"
	"pulseboard/internal/store"
)

func TestValueAbsentUntilFirstSet(t *testing.T) {
	s := store.New()
	s.Register("spread", models.KindComputed)

	if _, ok := s.Get("spread"); ok {
		t.Fatal("Get returned a value before the first computation")
	}

	src, ok := s.Source("spread")
	if !ok {
		t.Fatal("Source record missing after Register")
	}
	if src.HasValue {
		t.Error("HasValue = true before first Set")
	}

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	s.Set("spread", 47000, now)

	v, ok := s.Get("spread")
	if !ok || v != 47000 {
		t.Fatalf("Get = (%v, %v), want (47000, true)", v, ok)
	}
}

func TestSetCreatesRawSource(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Set("btc", 50000, now)

	src, ok := s.Source("btc")
	if !ok {
		t.Fatal("source not created on first ingest")
	}
	if src.Kind != models.KindRaw {
		t.Errorf("Kind = %q, want %q", src.Kind, models.KindRaw)
	}
	if !src.UpdatedAt.Equal(now) || !src.LastGoodAt.Equal(now) {
		t.Error("timestamps not recorded on Set")
	}
}

func TestMarkStaleKeepsValueAndLastGood(t *testing.T) {
	s := store.New()
	good := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	later := good.Add(time.Minute)

	s.Set("m", 12.5, good)
	s.MarkStale("m", later)

	v, ok := s.Get("m")
	if !ok || v != 12.5 {
		t.Fatalf("Get = (%v, %v), want previous value retained", v, ok)
	}

	src, _ := s.Source("m")
	if !src.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", src.UpdatedAt, later)
	}
	if !src.LastGoodAt.Equal(good) {
		t.Errorf("LastGoodAt = %v, want %v (last successful update)", src.LastGoodAt, good)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := store.New()
	s.Set("a", 1, time.Now())

	snap := s.Snapshot()

	// A write landing after the snapshot must not be visible in it.
	s.Set("a", 2, time.Now())
	if v, _ := snap.Get("a"); v != 1 {
		t.Errorf("snapshot saw later write: %v", v)
	}

	// Pass-local writes stay in the snapshot, not the store.
	snap.Put("derived", 10)
	if _, ok := s.Get("derived"); ok {
		t.Error("snapshot Put leaked into the store")
	}
	if v, ok := snap.Get("derived"); !ok || v != 10 {
		t.Errorf("snapshot Get(derived) = (%v, %v), want (10, true)", v, ok)
	}
}

func TestDelete(t *testing.T) {
	s := store.New()
	s.Set("x", 1, time.Now())
	s.Delete("x")
	if _, ok := s.Get("x"); ok {
		t.Error("value survived Delete")
	}
}

func TestListSorted(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Set("b", 2, now)
	s.Set("a", 1, now)
	s.Register("c", models.KindComputed)

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List len = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("List[%d].ID = %q, want %q", i, list[i].ID, want)
		}
	}
}
