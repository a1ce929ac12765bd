// Package resultstore keeps a process-local, TTL-retained map of
// completed job results (spec section 4.12), keyed by a generated job
// ID.
//
// Grounded on docsaf/cache.go's mutex-protected map shape, narrowed to a
// put/get contract keyed by github.com/google/uuid job IDs rather than
// content hashes.
package resultstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clarus-labs/repricer/internal/model"
)

const defaultRetention = 24 * time.Hour

type entry struct {
	results   model.JobResults
	expiresAt time.Time
}

// Store is a concurrency-safe in-memory job-results store.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]entry
	retention time.Duration
}

// New creates a Store retaining completed jobs for retention (falling
// back to 24h for a non-positive value).
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{jobs: make(map[string]entry), retention: retention}
}

// NewJobID generates a fresh job ID.
func NewJobID() string {
	return uuid.NewString()
}

// Put records rows as the completed results for jobID, creating
// JobResults with the current time as CreatedAt.
func (s *Store) Put(jobID string, rows []model.PricingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID] = entry{
		results: model.JobResults{
			JobID:     jobID,
			Rows:      rows,
			CreatedAt: time.Now(),
		},
		expiresAt: time.Now().Add(s.retention),
	}
}

// Get returns the JobResults for jobID, if present and unexpired.
func (s *Store) Get(jobID string) (model.JobResults, bool) {
	s.mu.RLock()
	e, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return model.JobResults{}, false
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
		return model.JobResults{}, false
	}
	return e.results, true
}

// Sweep removes all expired entries; callers may run this periodically
// instead of relying solely on lazy expiry in Get.
func (s *Store) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.jobs {
		if now.After(e.expiresAt) {
			delete(s.jobs, id)
		}
	}
}
