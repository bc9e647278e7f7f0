// Package registry maps node type and action slug pairs to their step handlers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowexec/pkg/models"
	"github.com/dukex/flowexec/pkg/protocol"
	"github.com/dukex/flowexec/pkg/template"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotRegistered     = errors.New("no handler registered")
	ErrAlreadyRegistered = errors.New("handler already registered")
	ErrInvalidConfig     = errors.New("invalid node config")
	ErrEmptyRegistry     = errors.New("registry has no handlers")
)

// Key identifies a handler.
type Key struct {
	Type   models.NodeType
	Action string
}

func (k Key) String() string {
	return string(k.Type) + "/" + k.Action
}

// KeyFor returns the lookup key of a node.
func KeyFor(node models.WorkflowNode) Key {
	return Key{Type: node.Type, Action: node.Action}
}

// Descriptor describes one registered action and carries its handler.
type Descriptor struct {
	Type        models.NodeType `json:"type"`
	Action      string          `json:"action"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema,omitempty"`
	Defaults    map[string]any  `json:"defaults,omitempty"`

	Handler protocol.Handler `json:"-"`

	// Check is an optional readiness probe used by HealthCheck.
	Check func(ctx context.Context) error `json:"-"`
}

func (d Descriptor) Key() Key {
	return Key{Type: d.Type, Action: d.Action}
}

// Registry is populated once at process start and read-only afterwards.
type Registry struct {
	logger      *slog.Logger
	descriptors map[Key]Descriptor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log.With("module", "registry"),
		descriptors: make(map[Key]Descriptor),
	}
}

func (r *Registry) Register(descriptor Descriptor) error {
	key := descriptor.Key()

	if descriptor.Handler == nil {
		return fmt.Errorf("descriptor %s has no handler", key)
	}

	if _, exists := r.descriptors[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	r.descriptors[key] = descriptor
	r.logger.Debug("Registered handler", "key", key.String())

	return nil
}

// MustRegister registers every descriptor and panics on the first failure.
func (r *Registry) MustRegister(descriptors ...Descriptor) {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(key Key) (Descriptor, error) {
	d, ok := r.descriptors[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w for %s", ErrNotRegistered, key)
	}

	return d, nil
}

// Descriptors returns every registered descriptor sorted by key.
func (r *Registry) Descriptors() []Descriptor {
	list := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		list = append(list, d)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key().String() < list[j].Key().String()
	})

	return list
}

// ValidateConfig checks config against the descriptor's JSON schema. Defaults are not applied.
// String values holding {{...}} references are resolved at run time: they satisfy
// "required" and are not type-checked.
func (r *Registry) ValidateConfig(key Key, config map[string]any) error {
	d, err := r.Lookup(key)
	if err != nil {
		return err
	}

	if len(d.Schema) == 0 {
		return nil
	}

	literal := make(map[string]any, len(config))
	templated := make(map[string]bool)

	for k, v := range config {
		if s, ok := v.(string); ok && template.NeedsTemplating(s) {
			templated[k] = true

			continue
		}

		literal[k] = v
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(withoutRequired(d.Schema, templated)),
		gojsonschema.NewGoLoader(literal),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", key, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w for %s: %s", ErrInvalidConfig, key, strings.Join(messages, "; "))
	}

	return nil
}

// withoutRequired returns a shallow copy of schema whose top-level "required" list omits keys.
func withoutRequired(schema map[string]any, keys map[string]bool) map[string]any {
	if len(keys) == 0 {
		return schema
	}

	var required []any

	switch list := schema["required"].(type) {
	case []string:
		for _, k := range list {
			if !keys[k] {
				required = append(required, k)
			}
		}
	case []any:
		for _, k := range list {
			if name, _ := k.(string); !keys[name] {
				required = append(required, k)
			}
		}
	default:
		return schema
	}

	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	if len(required) == 0 {
		delete(out, "required")
	} else {
		out["required"] = required
	}

	return out
}

func (r *Registry) HealthCheck(ctx context.Context) error {
	if len(r.descriptors) == 0 {
		return ErrEmptyRegistry
	}

	var errs []error

	for _, d := range r.Descriptors() {
		if d.Check == nil {
			continue
		}

		if err := d.Check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Key(), err))
		}
	}

	return errors.Join(errs...)
}
