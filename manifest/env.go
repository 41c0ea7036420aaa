package manifest

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// ApplyEnv overrides manifest values from environment variables named
// PREFIX_<MODULE>_<FIELD>, where MODULE is the module name upper-cased with
// every non-alphanumeric rune replaced by an underscore.
//
// PREFIX_<MODULE>_NEEDED overrides the needed flag. PREFIX_<MODULE>_<PARAM>
// overrides a param the manifest already declares and is converted to that
// param's type; string params take the raw value. Empty variables are
// ignored. It returns the names of the variables that were applied.
func (m *Manifest) ApplyEnv(prefix string) ([]string, error) {
	var applied []string
	for _, name := range m.ModuleNames() {
		spec := m.Modules[name]

		neededVar := envName(prefix, name, "needed")
		if value := os.Getenv(neededVar); value != "" {
			converted, err := cast.FromType(value, reflect.TypeOf(spec.Needed))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidParam, neededVar, err)
			}
			spec.Needed = converted.(bool)
			applied = append(applied, neededVar)
		}

		// Only declared params are overridable; their value fixes the target type.
		for key, current := range spec.Params {
			paramVar := envName(prefix, name, key)
			value := os.Getenv(paramVar)
			if value == "" {
				continue
			}
			converted, err := convertParam(value, current)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidParam, paramVar, err)
			}
			spec.Params[key] = converted
			applied = append(applied, paramVar)
		}

		m.Modules[name] = spec
	}
	return applied, nil
}

// convertParam converts value to the type of current.
func convertParam(value string, current any) (any, error) {
	if current == nil {
		return value, nil
	}
	converted, err := cast.FromType(value, reflect.TypeOf(current))
	if err != nil {
		return nil, fmt.Errorf("cannot convert value to type %T: %w", current, err)
	}
	return converted, nil
}

func envName(prefix, module, field string) string {
	parts := []string{envSegment(module), envSegment(field)}
	if prefix != "" {
		parts = append([]string{envSegment(prefix)}, parts...)
	}
	return strings.Join(parts, "_")
}

func envSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
