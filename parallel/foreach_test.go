package parallel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestForEachErrVisitsEveryIndexOnce(t *testing.T) {
	const n = 100
	var counts [n]int32
	err := ForEachErr(n, 4, func(i int) error {
		atomic.AddInt32(&counts[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestForEachErrRespectsLimit(t *testing.T) {
	var running, peak int32
	ForEachErr(50, 3, func(i int) error {
		cur := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		return nil
	})
	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent calls, got %d", peak)
	}
}

func TestForEachErrDefaultLimit(t *testing.T) {
	var calls int32
	if err := ForEachErr(20, 0, func(i int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 20 {
		t.Fatalf("expected 20 calls, got %d", calls)
	}
}

func TestForEachErrZeroLength(t *testing.T) {
	called := false
	if err := ForEachErr(0, 2, func(i int) error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("body should not run for zero length")
	}
}

func TestForEachErrReturnsLowestIndex(t *testing.T) {
	err := ForEachErr(10, 4, func(i int) error {
		if i == 3 || i == 7 {
			return fmt.Errorf("fail %d", i)
		}
		return nil
	})
	if err == nil || err.Error() != "fail 3" {
		t.Fatalf("expected error from index 3, got %v", err)
	}
}

func TestForEachErrRunsEveryIndexAfterFailure(t *testing.T) {
	var calls int32
	sentinel := errors.New("first")
	err := ForEachErr(30, 2, func(i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 0 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 30 {
		t.Fatalf("expected 30 calls, got %d", calls)
	}
}
