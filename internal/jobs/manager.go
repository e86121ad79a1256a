package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rserv/internal/apperr"
	"rserv/internal/query"
	"rserv/internal/sulpher"
)

// Runner executes a parsed Sulpher query. Satisfied by *query.Engine;
// declared as an interface here so jobs never depends on graphidx
// directly.
type Runner interface {
	Execute(q *sulpher.Query, maxDepth int) ([]query.Row, error)
}

// Manager is the async graph-query job manager of §4.9: submission,
// lifecycle tracking, a bounded worker pool, and the result cache.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	queue   chan *Job
	cache   *ResultCache
	runner  Runner
	timeout time.Duration
	logger  *zap.SugaredLogger
	wg      sync.WaitGroup
}

// Config bundles Manager construction options.
type Config struct {
	Runner        Runner
	WorkerCount   int
	CacheCapacity int
	CacheTTL      time.Duration
	QueryTimeout  time.Duration
	Logger        *zap.SugaredLogger
}

// NewManager builds a Manager and starts its worker pool. Call Shutdown
// to stop the workers.
func NewManager(cfg Config) *Manager {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	m := &Manager{
		jobs:    make(map[string]*Job),
		queue:   make(chan *Job, workers*4),
		cache:   NewResultCache(cfg.CacheCapacity, cfg.CacheTTL),
		runner:  cfg.Runner,
		timeout: cfg.QueryTimeout,
		logger:  cfg.Logger,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Cache exposes the result cache so the store layer can be wired to
// invalidate it on write (it satisfies store.Invalidator).
func (m *Manager) Cache() *ResultCache { return m.cache }

// Shutdown closes the job queue and waits for in-flight workers to drain.
func (m *Manager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

// Submit canonicalises queryText, returns a cached result immediately
// (status already completed) on a cache hit, or enqueues a new pending
// job and returns its id, per §4.9.
func (m *Manager) Submit(queryText string, maxDepth int) (*Job, bool, error) {
	canonical := Canonicalize(queryText)

	if cached, hit := m.cache.Get(canonical); hit {
		now := time.Now()
		job := &Job{
			ID:          uuid.NewString(),
			Query:       queryText,
			MaxDepth:    maxDepth,
			Status:      StatusCompleted,
			SubmittedAt: now,
			FinishedAt:  &now,
			Results:     cached,
		}
		m.mu.Lock()
		m.jobs[job.ID] = job
		m.mu.Unlock()
		return job, true, nil
	}

	parsed, err := sulpher.Parse(queryText)
	if err != nil {
		return nil, false, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		Query:       queryText,
		MaxDepth:    maxDepth,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
		parsed:      parsed,
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.queue <- job
	return job, false, nil
}

// Status returns job's current status view, or NotFound.
func (m *Manager) Status(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job %s not found", id)
	}
	return job, nil
}

// Result returns job's result, failing with Conflict if the job has not
// reached a terminal state.
func (m *Manager) Result(id string) (*Job, error) {
	job, err := m.Status(id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted && job.Status != StatusFailed {
		return nil, apperr.Conflict("job %s has not finished (status=%s)", id, job.Status)
	}
	return job, nil
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.queue {
		m.mu.Lock()
		parsed := job.parsed
		job.Status = StatusRunning
		m.mu.Unlock()

		ctx := context.Background()
		var cancel context.CancelFunc
		if m.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
		}

		done := make(chan struct{})
		var results []query.Row
		var runErr error
		go func() {
			results, runErr = m.runner.Execute(parsed, job.MaxDepth)
			close(done)
		}()

		select {
		case <-done:
			m.finish(job, results, runErr)
		case <-ctx.Done():
			m.finish(job, nil, apperr.New(apperr.KindTimeout, "query %s exceeded its timeout", job.ID))
		}
		if cancel != nil {
			cancel()
		}
	}
}

func (m *Manager) finish(job *Job, results []query.Row, err error) {
	now := time.Now()
	m.mu.Lock()
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Err = err
	} else {
		job.Status = StatusCompleted
		job.Results = results
		m.cache.Put(Canonicalize(job.Query), results)
	}
	m.mu.Unlock()
}

// Canonicalize normalises a query string for cache-key comparison:
// whitespace-normalised, case-preserving for string literals, case-folded
// (uppercased) elsewhere — matching Sulpher's own keyword case-folding.
func Canonicalize(queryText string) string {
	tokens, err := sulpher.NewLexer(queryText).Tokenize()
	if err != nil {
		return strings.Join(strings.Fields(queryText), " ")
	}
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Type == sulpher.TokenEOF {
			continue
		}
		if t.Type == sulpher.TokenString {
			parts = append(parts, `"`+t.Text+`"`)
			continue
		}
		parts = append(parts, strings.ToUpper(t.Text))
	}
	return strings.Join(parts, " ")
}
