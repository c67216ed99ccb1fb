package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNoPipeline = errors.New("no such pipeline")

// Registry maps pipeline ids to running pipelines for the control plane.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[int]*Pipeline
}

func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[int]*Pipeline)}
}

// Put adds p, replacing any pipeline with the same id. The replaced
// pipeline is returned.
func (r *Registry) Put(p *Pipeline) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.pipelines[p.id]
	r.pipelines[p.id] = p
	return old
}

func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, id)
}

// Get returns the pipeline with the given id.
func (r *Registry) Get(id int) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoPipeline, id)
	}
	return p, nil
}

// List returns all pipelines ordered by id.
func (r *Registry) List() []*Pipeline {
	r.mu.RLock()
	list := make([]*Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		list = append(list, p)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}
