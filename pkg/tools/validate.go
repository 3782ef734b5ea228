package tools

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidArguments = errors.New("invalid tool arguments")

// ValidateArgs checks args against the spec's schema: unknown parameters,
// missing required parameters, and primitive-type mismatches all fail with
// ErrInvalidArguments. A failing call never reaches the handler.
func ValidateArgs(spec Spec, args map[string]any) error {
	byName := make(map[string]Param, len(spec.Params))
	for _, p := range spec.Params {
		byName[p.Name] = p
	}
	for name, value := range args {
		p, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %s does not accept %q", ErrInvalidArguments, spec.Name, name)
		}
		if err := checkType(p, value); err != nil {
			return fmt.Errorf("%w: %s argument %q: %v", ErrInvalidArguments, spec.Name, name, err)
		}
	}
	for _, p := range spec.Params {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return fmt.Errorf("%w: %s requires %q", ErrInvalidArguments, spec.Name, p.Name)
		}
	}
	return nil
}

// checkType accepts the value shapes JSON decoding produces: strings, bools,
// and float64 for every numeric literal.
func checkType(p Param, value any) error {
	switch p.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case TypeNumber:
		if !isNumeric(value) {
			return fmt.Errorf("expected number, got %T", value)
		}
	case TypeInteger:
		if !isNumeric(value) {
			return fmt.Errorf("expected integer, got %T", value)
		}
		if f, ok := value.(float64); ok && f != math.Trunc(f) {
			return fmt.Errorf("expected integer, got %v", f)
		}
	}
	return nil
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}
