package config

import "context"

// =============================================================================
// Module Contract
// =============================================================================

// Manager applies one kind of deployment object to the target platform.
// Implementations live next to their module and talk to the platform API.
type Manager interface {
	// Plan reports whether Apply would change anything, without side effects.
	Plan(ctx context.Context, obj any) (bool, error)

	// Apply converges the platform toward obj. force re-applies even when no
	// difference is detected, used when an update dependency changed.
	// Returns whether anything changed.
	Apply(ctx context.Context, obj any, force bool) (bool, error)

	// Remove deletes the object from the platform. Returns whether it
	// existed.
	Remove(ctx context.Context, obj any) (bool, error)
}

// Module ties an entity type to its parser and manager.
type Module interface {
	// Name identifies the module in a document's modules list.
	Name() string

	// TypeName is the value matched against an entity's type field.
	TypeName() string

	// ManagerKey groups parsed objects under one manager in the load result.
	ManagerKey() string

	// Manager returns the manager for the objects this module parses.
	Manager() Manager

	// Parse converts an entity into the module's deployment object. Parse
	// validates the module schema and must not touch the platform.
	Parse(name string, entity *Entity, files Helper) (any, error)
}

// Preprocessor is implemented by modules that expand one entity into zero or
// more entities before conditions and parsing run, for example one app per
// compose service.
type Preprocessor interface {
	Preprocess(name string, entity *Entity, files Helper) ([]NamedEntity, error)
}

// =============================================================================
// Module Registry
// =============================================================================

// Registry resolves entity types to modules. Built-in modules are always
// active. Extensions are registered up front and become active when a
// document lists their name under modules; there is no search path and no
// dynamic loading.
type Registry struct {
	active    []Module
	byType    map[string]Module
	available map[string]Module
}

// NewRegistry creates a registry with the given always-active modules.
func NewRegistry(builtin ...Module) *Registry {
	r := &Registry{
		byType:    make(map[string]Module),
		available: make(map[string]Module),
	}
	for _, m := range builtin {
		r.activate(m)
	}
	return r
}

// Register makes an extension module available for activation. Registering
// the same name twice replaces the earlier module.
func (r *Registry) Register(m Module) {
	r.available[m.Name()] = m
}

// Activate enables a registered extension module. Activating an unregistered
// name is a configuration error. When two active modules claim the same type
// name the later activation wins.
func (r *Registry) Activate(name string) error {
	m, ok := r.available[name]
	if !ok {
		return NewError(ErrUnknownModule, "unknown module %s", name)
	}
	r.activate(m)
	return nil
}

func (r *Registry) activate(m Module) {
	r.active = append(r.active, m)
	r.byType[m.TypeName()] = m
}

// ForType returns the active module handling the given entity type.
func (r *Registry) ForType(typeName string) (Module, bool) {
	m, ok := r.byType[typeName]
	return m, ok
}

// Active returns the active modules in activation order.
func (r *Registry) Active() []Module {
	out := make([]Module, len(r.active))
	copy(out, r.active)
	return out
}

// Managers returns the managers of all active modules keyed by manager key.
func (r *Registry) Managers() map[string]Manager {
	out := make(map[string]Manager, len(r.active))
	for _, m := range r.active {
		out[m.ManagerKey()] = m.Manager()
	}
	return out
}
