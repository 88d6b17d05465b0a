// Package registry maps node titles to the condition and action kinds that
// implement them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNotRegistered indicates no kind is registered under the node title.
var ErrNotRegistered = errors.New("node kind not registered")

type Registry struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	conditions map[string]protocol.ConditionFactory
	actions    map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:     log.With("module", "registry"),
		conditions: make(map[string]protocol.ConditionFactory),
		actions:    make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterCondition(factory protocol.ConditionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conditions[factory.ID()] = factory
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[factory.ID()] = factory
}

// CreateCondition builds the condition for a node. Unknown titles yield ErrNotRegistered.
func (r *Registry) CreateCondition(node *models.Node) (protocol.Condition, error) {
	r.mu.RLock()
	factory, ok := r.conditions[node.Title]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("condition %q: %w", node.Title, ErrNotRegistered)
	}

	return factory.Create(node.Settings)
}

// CreateAction builds the action for a node. Unknown titles yield ErrNotRegistered.
func (r *Registry) CreateAction(node *models.Node) (protocol.Action, error) {
	r.mu.RLock()
	factory, ok := r.actions[node.Title]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("action %q: %w", node.Title, ErrNotRegistered)
	}

	return factory.Create(node.Settings)
}

// Conditions returns the registered condition titles, sorted.
func (r *Registry) Conditions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.conditions)
}

// Actions returns the registered action titles, sorted.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.actions)
}

// ValidateSettings checks the node settings against the schema of its kind.
// Triggers and unknown titles are not checked.
func (r *Registry) ValidateSettings(node *models.Node) error {
	var factory protocol.NodeFactory

	r.mu.RLock()

	switch node.Type {
	case models.NodeTypeCondition:
		if f, ok := r.conditions[node.Title]; ok {
			factory = f
		}
	case models.NodeTypeAction:
		if f, ok := r.actions[node.Title]; ok {
			factory = f
		}
	}

	r.mu.RUnlock()

	if factory == nil {
		return nil
	}

	settings := node.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(factory.Schema()),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("node %s: failed to validate settings: %w", node.ID, err)
	}

	if result.Valid() {
		return nil
	}

	errs := make([]error, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Errorf("node %s (%s): %s", node.ID, node.Title, desc.String()))
	}

	return errors.Join(errs...)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
