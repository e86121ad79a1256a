package jobs

import (
	"testing"
	"time"

	"rserv/internal/graphidx"
	"rserv/internal/logging"
	"rserv/internal/query"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	idx := graphidx.New(false, "", logging.Noop())
	idx.Upsert("users", 1, map[string]interface{}{"name": "Alice"}, nil)
	idx.Upsert("users", 2, map[string]interface{}{"name": "Bob"}, nil)
	engine := query.New(idx)
	return NewManager(Config{
		Runner:        engine,
		WorkerCount:   2,
		CacheCapacity: 16,
		CacheTTL:      time.Minute,
		QueryTimeout:  time.Second,
		Logger:        logging.Noop(),
	})
}

func waitForTerminal(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Status(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestSubmitRunsAndCompletes(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown()

	job, cached, err := m.Submit(`MATCH (u:User) RETURN u.name`, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Fatal("expected a cold submission, not a cache hit")
	}

	finished := waitForTerminal(t, m, job.ID)
	if finished.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (err=%v)", finished.Status, finished.Err)
	}
	if len(finished.Results) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(finished.Results))
	}
}

func TestSubmitSyntaxErrorFailsImmediately(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown()

	_, _, err := m.Submit(`MATCH RETURN`, 5)
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSubmitCacheHitReturnsCompletedImmediately(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown()

	q := `MATCH (u:User) RETURN u.name`
	job, _, err := m.Submit(q, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForTerminal(t, m, job.ID)

	job2, cached, err := m.Submit(q, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Fatal("expected second identical submission to be a cache hit")
	}
	if job2.Status != StatusCompleted {
		t.Fatalf("expected cached job to already be completed, got %s", job2.Status)
	}
}

func TestResultFailsWithConflictBeforeTerminal(t *testing.T) {
	m := newTestManager(t)
	defer m.Shutdown()

	job := &Job{ID: "pending-job", Status: StatusPending}
	m.jobs[job.ID] = job

	_, err := m.Result(job.ID)
	if err == nil {
		t.Fatal("expected Conflict for a non-terminal job")
	}
}

func TestCanonicalizeFoldsCaseButKeepsStringLiterals(t *testing.T) {
	a := Canonicalize(`match (u:User) where u.name = 'Bob' return u`)
	b := Canonicalize(`MATCH   (u:User)   WHERE u.name = 'Bob'   RETURN u`)
	if a != b {
		t.Fatalf("expected canonical forms to match, got %q vs %q", a, b)
	}
	c := Canonicalize(`match (u:User) where u.name = 'bob' return u`)
	if a == c {
		t.Fatal("expected differing string literal case to produce a different canonical form")
	}
}

func TestResultCacheEvictsOnInvalidateAll(t *testing.T) {
	c := NewResultCache(10, time.Minute)
	c.Put("k", []query.Row{{"a": 1}})
	c.InvalidateAll()
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected cache entry to be evicted")
	}
}

func TestResultCacheRespectsTTL(t *testing.T) {
	c := NewResultCache(10, time.Millisecond)
	c.Put("k", []query.Row{{"a": 1}})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestResultCacheEvictsLRUAtCapacity(t *testing.T) {
	c := NewResultCache(2, time.Minute)
	c.Put("a", []query.Row{{"v": 1}})
	c.Put("b", []query.Row{{"v": 2}})
	c.Put("c", []query.Row{{"v": 3}})
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected least-recently-used entry a to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected most recent entry to remain cached")
	}
}
