package manifest

import (
	"fmt"
	"reflect"
	"time"

	"github.com/golobby/cast"
)

// String returns the named param as a string, or def when it is not set.
func (s ModuleSpec) String(key, def string) string {
	value, ok := s.Params[key]
	if !ok || value == nil {
		return def
	}
	return fmt.Sprint(value)
}

// Bool returns the named param as a bool. String values such as "true" or
// "1" are accepted.
func (s ModuleSpec) Bool(key string) (bool, error) {
	value, ok := s.Params[key]
	if !ok || value == nil {
		return false, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		converted, err := cast.FromType(v, reflect.TypeOf(false))
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrInvalidParam, key, err)
		}
		return converted.(bool), nil
	default:
		return false, fmt.Errorf("%w: %s must be a bool, got %T", ErrInvalidParam, key, value)
	}
}

// Duration returns the named param as a duration. Strings are parsed with
// time.ParseDuration; bare numbers are milliseconds.
func (s ModuleSpec) Duration(key string) (time.Duration, error) {
	value, ok := s.Params[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidParam, key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a duration, got %T", ErrInvalidParam, key, value)
	}
}
