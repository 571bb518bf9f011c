// internal/api/runs.go
package api

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"stairway/internal/pipeline"
	"stairway/pkg/tenants"
)

// ErrRunNotFound: the run id is unknown or belongs to another tenant.
var ErrRunNotFound = errors.New("api: run not found")

type runEntry struct {
	mu     sync.Mutex
	tenant string
	run    *pipeline.Run
}

// Registry holds in-flight runs keyed by id. Runs are tenant-scoped: a lookup
// under the wrong tenant behaves exactly like a missing run. Stage handlers
// hold the run's own lock for the duration of a stage call, which serializes
// stages within one run without coupling runs to each other.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*runEntry)}
}

func (g *Registry) Create(t tenants.Tenant, run *pipeline.Run) string {
	id := uuid.NewString()
	g.mu.Lock()
	g.runs[id] = &runEntry{tenant: t.ID, run: run}
	g.mu.Unlock()
	return id
}

// With runs fn against the locked run. Whatever fn returns is passed through.
func (g *Registry) With(tenantID, runID string, fn func(run *pipeline.Run) error) error {
	g.mu.RLock()
	e, ok := g.runs[runID]
	g.mu.RUnlock()
	if !ok || e.tenant != tenantID {
		return ErrRunNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.run)
}

func (g *Registry) Delete(tenantID, runID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.runs[runID]
	if !ok || e.tenant != tenantID {
		return ErrRunNotFound
	}
	delete(g.runs, runID)
	return nil
}
