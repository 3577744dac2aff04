package metamodel

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/ohowland/mtress/internal/pkg/modelerr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Factory builds a component named name from raw configuration parameters.
type Factory func(name string, params map[string]interface{}) (Component, error)

// Registry maps configuration type keys to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under key.
func (r *Registry) Register(key string, f Factory) error {
	if key == "" || f == nil {
		return fmt.Errorf("register: empty key or nil factory")
	}
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("register: type %s already registered", key)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register that panics, for static registration tables.
func (r *Registry) MustRegister(key string, f Factory) {
	if err := r.Register(key, f); err != nil {
		panic(err)
	}
}

// New builds a component of type key.
func (r *Registry) New(key, name string, params map[string]interface{}) (Component, error) {
	f, ok := r.factories[key]
	if !ok {
		return nil, modelerr.Configurationf(name, "unknown component type %q", key)
	}
	c, err := f(name, params)
	if err != nil {
		return nil, modelerr.WrapConfiguration(name, err)
	}
	return c, nil
}

// Keys lists the registered type keys in order.
func (r *Registry) Keys() []string {
	keys := maps.Keys(r.factories)
	slices.Sort(keys)
	return keys
}

// Decode copies params into the struct pointed to by out. Field names come
// from mapstructure tags; unknown keys are errors and scalars are converted
// where unambiguous.
func Decode(params map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}
