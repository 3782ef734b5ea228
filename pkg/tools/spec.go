package tools

import (
	"context"
	"fmt"
	"strings"
)

// ParamType is the primitive type of one tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param declares one named tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Spec declares a callable tool: a unique name, a human description, and a
// strict input schema. Immutable after registration.
type Spec struct {
	Name        string
	Description string
	Params      []Param
}

// Handler executes a tool with already-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// JSONSchema renders the provider-facing JSON schema object for the spec.
func (s Spec) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	var required []string
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("tool spec: name is required")
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("tool %s: parameter name is required", s.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %q", s.Name, p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean:
		default:
			return fmt.Errorf("tool %s: parameter %q has unsupported type %q", s.Name, p.Name, p.Type)
		}
	}
	return nil
}
