package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// JSON Schema type names.
const (
	typeObject  = "object"
	typeArray   = "array"
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
)

// Schema is the subset of JSON Schema the server emits for tool inputs:
// enough to describe an argument object and validate calls against it.
// The zero Schema has no type and accepts any value.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Default     any                `json:"default,omitempty"`
}

// Generate derives a schema from the value's dynamic type.
func Generate(v any) (*Schema, error) {
	return GenerateFromType(reflect.TypeOf(v))
}

var (
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	timeType       = reflect.TypeOf(time.Time{})
)

// GenerateFromType derives a schema from a Go type. Struct fields map to
// object properties under their encoding/json names; the jsonschema tag
// adds constraints (see the package documentation for the grammar).
func GenerateFromType(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot derive a schema from nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == rawMessageType:
		return &Schema{}, nil
	case t == timeType:
		return &Schema{Type: typeString}, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		s := &Schema{Type: typeObject, Properties: make(map[string]*Schema)}
		if err := addStructFields(t, s); err != nil {
			return nil, err
		}
		return s, nil
	case reflect.String:
		return &Schema{Type: typeString}, nil
	case reflect.Bool:
		return &Schema{Type: typeBoolean}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: typeInteger}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: typeNumber}, nil
	case reflect.Slice, reflect.Array:
		// []byte marshals as a base64 string, not an array.
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: typeString}, nil
		}
		items, err := GenerateFromType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Schema{Type: typeArray, Items: items}, nil
	case reflect.Map:
		return &Schema{Type: typeObject}, nil
	case reflect.Interface:
		return &Schema{}, nil
	default:
		return nil, fmt.Errorf("cannot describe %s in a schema", t.Kind())
	}
}

func addStructFields(t reflect.Type, s *Schema) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		// Untagged embedded structs flatten into the parent, mirroring
		// how encoding/json marshals them.
		if f.Anonymous && name == "" {
			ft := f.Type
			for ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := addStructFields(ft, s); err != nil {
					return err
				}
				continue
			}
		}
		if name == "" {
			name = f.Name
		}

		prop, err := GenerateFromType(f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		required, err := applyTag(f.Tag.Get("jsonschema"), prop)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		if required {
			s.Required = append(s.Required, name)
		}
		s.Properties[name] = prop
	}
	return nil
}

func applyTag(tag string, s *Schema) (required bool, err error) {
	for _, directive := range strings.Split(tag, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		key, value, _ := strings.Cut(directive, "=")
		switch key {
		case "required":
			required = true
		case "description":
			s.Description = value
		case "minimum":
			s.Minimum, err = tagNumber(value)
		case "maximum":
			s.Maximum, err = tagNumber(value)
		case "enum":
			for _, entry := range strings.Split(value, "|") {
				v, convErr := tagScalar(s.Type, entry)
				if convErr != nil {
					return false, convErr
				}
				s.Enum = append(s.Enum, v)
			}
		case "default":
			s.Default, err = tagScalar(s.Type, value)
		}
		if err != nil {
			return false, err
		}
	}
	return required, nil
}

func tagNumber(raw string) (*float64, error) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("numeric tag value %q", raw)
	}
	return &n, nil
}

// tagScalar converts a tag value to the JSON representation matching the
// field's schema type, so enums and defaults compare against decoded input.
func tagScalar(schemaType, raw string) (any, error) {
	switch schemaType {
	case typeInteger, typeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("numeric tag value %q", raw)
		}
		return n, nil
	case typeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("boolean tag value %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}
