package config

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Entity Config Validation
// =============================================================================

var validate = validator.New()

// DecodeConfig decodes an entity mapping into a module config struct and
// checks its validate tags. Reserved entity keys are simply not matched by
// the struct and stay untouched.
func DecodeConfig(name string, entity *Entity, out any) error {
	if err := entity.Node.Decode(out); err != nil {
		return NewError(ErrInvalidYAML, "could not decode entity %s: %v", name, err)
	}
	if err := validate.Struct(out); err != nil {
		return NewError(ErrInvalidConfig, "invalid configuration for %s: %v", name, err)
	}
	return nil
}
