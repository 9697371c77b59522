// Package services exposes tracker operations as named calls with
// JSON-schema parameter descriptions, shared by the HTTP API and the CLI.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
)

// Service is one callable operation
type Service struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Handler     Handler                `json:"-"`
}

// Handler executes a service call
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Registry manages all services
type Registry struct {
	services map[string]Service
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds services to the registry
func (r *Registry) Register(services ...Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range services {
		if s.Handler == nil {
			return fmt.Errorf("service %s has no handler", s.Name)
		}
		if _, exists := r.services[s.Name]; exists {
			return fmt.Errorf("service %s already registered", s.Name)
		}
		r.services[s.Name] = s
	}
	return nil
}

// Get retrieves a service by name
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[name]
	return s, ok
}

// List returns all services sorted by name
func (r *Registry) List() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call executes a service by name
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, apperrors.New(apperrors.ErrServiceNotFound.Code, fmt.Sprintf("service %q not found", name))
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return s.Handler(ctx, args)
}

// CallJSON executes a service with JSON encoded arguments
func (r *Registry) CallJSON(ctx context.Context, name string, raw json.RawMessage) (interface{}, error) {
	var args map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, apperrors.Validation("failed to parse service arguments: %v", err)
		}
	}
	return r.Call(ctx, name, args)
}
