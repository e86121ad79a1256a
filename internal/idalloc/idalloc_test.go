package idalloc

import (
	"sync"
	"testing"

	"rserv/internal/fsutil"
)

func TestAllocateStartsAtOne(t *testing.T) {
	a := New(fsutil.NewLayout(t.TempDir(), "schema"))

	id, err := a.Allocate("users")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}

	id, err = a.Allocate("users")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected second id 2, got %d", id)
	}
}

func TestAllocateSequencesAreIndependentPerEntity(t *testing.T) {
	a := New(fsutil.NewLayout(t.TempDir(), "schema"))

	uid, _ := a.Allocate("users")
	pid, _ := a.Allocate("posts")

	if uid != 1 || pid != 1 {
		t.Fatalf("expected independent sequences both starting at 1, got users=%d posts=%d", uid, pid)
	}
}

func TestAllocateConcurrentNeverDuplicates(t *testing.T) {
	a := New(fsutil.NewLayout(t.TempDir(), "schema"))

	const n = 50
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id, err := a.Allocate("users")
			if err != nil {
				t.Errorf("Allocate: %v", err)
			}
			ids[idx] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id allocated: %d", id)
		}
		seen[id] = true
	}
}
