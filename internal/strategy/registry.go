package strategy

import (
	"errors"
	"sort"
	"sync"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

// DefaultStrategyName is used when a field has no registered strategy.
const DefaultStrategyName = "default"

var (
	ErrStrategyNameMissing = errors.New("strategy name is required")
	ErrStrategyNoFields    = errors.New("strategy must apply to at least one field")
)

// Template describes how to phrase a probe for a set of fields.
type Template interface {
	Name() string
	ApplicableFields() []string
	ProbeType() domain.ProbeType
	GeneratePrompt(h *domain.Hypothesis) string
}

// Registry maps strategy names to templates. It is populated at start-up and read-mostly afterwards.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// NewDefaultRegistry returns a registry holding every built-in template.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range Builtins() {
		_ = r.Register(t)
	}
	return r
}

// Register adds t. Registering the same name again replaces the template but keeps its position.
func (r *Registry) Register(t Template) error {
	if t.Name() == "" {
		return ErrStrategyNameMissing
	}
	if len(t.ApplicableFields()) == 0 {
		return ErrStrategyNoFields
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.templates[t.Name()] = t
	return nil
}

// Unregister removes the named template. It reports whether anything was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[name]; !ok {
		return false
	}
	delete(r.templates, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// StrategiesForField returns the templates that apply to field, in registration order.
func (r *Registry) StrategiesForField(field string) []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Template
	for _, name := range r.order {
		t := r.templates[name]
		for _, f := range t.ApplicableFields() {
			if f == field {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// All returns every template in registration order.
func (r *Registry) All() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.templates[name])
	}
	return out
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
