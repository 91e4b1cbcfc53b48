package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// ValidationError is a single violation, located by a dotted JSON path
// such as "user.email" or "tags[1]".
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every violation found in one validation pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationErrors) add(path, format string, args ...any) {
	*e = append(*e, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks raw JSON against the schema. It reports every violation
// found, not just the first, so a client can fix a call in one round trip.
func (s *Schema) Validate(data json.RawMessage) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationError{Message: "malformed JSON: " + err.Error()}
	}
	return s.ValidateValue(value)
}

// ValidateValue checks an already decoded JSON value in the encoding/json
// representation: map[string]any, []any, string, float64 or json.Number,
// bool, nil.
func (s *Schema) ValidateValue(value any) error {
	var errs ValidationErrors
	s.check("", value, &errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Schema) check(path string, value any, errs *ValidationErrors) {
	// Untyped schemas accept anything. Explicit null passes type checks;
	// only the required-field check catches absence.
	if s.Type == "" || value == nil {
		return
	}

	switch s.Type {
	case typeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			errs.add(path, "want object, got %s", jsonType(value))
			return
		}
		s.checkObject(path, obj, errs)

	case typeArray:
		arr, ok := value.([]any)
		if !ok {
			errs.add(path, "want array, got %s", jsonType(value))
			return
		}
		if s.Items == nil {
			return
		}
		for i, item := range arr {
			s.Items.check(fmt.Sprintf("%s[%d]", path, i), item, errs)
		}

	case typeString:
		str, ok := value.(string)
		if !ok {
			errs.add(path, "want string, got %s", jsonType(value))
			return
		}
		s.checkEnum(path, str, errs)

	case typeInteger, typeNumber:
		num, ok := asNumber(value)
		if !ok {
			errs.add(path, "want %s, got %s", s.Type, jsonType(value))
			return
		}
		if s.Type == typeInteger && num != math.Trunc(num) {
			errs.add(path, "want integer, got %v", num)
			return
		}
		if s.Minimum != nil && num < *s.Minimum {
			errs.add(path, "%v is below the minimum %v", num, *s.Minimum)
		}
		if s.Maximum != nil && num > *s.Maximum {
			errs.add(path, "%v is above the maximum %v", num, *s.Maximum)
		}
		s.checkEnum(path, num, errs)

	case typeBoolean:
		if _, ok := value.(bool); !ok {
			errs.add(path, "want boolean, got %s", jsonType(value))
		}
	}
}

func (s *Schema) checkObject(path string, obj map[string]any, errs *ValidationErrors) {
	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			errs.add(joinPath(path, name), "missing required field")
		}
	}
	// Sorted so multi-error output is deterministic.
	for _, name := range slices.Sorted(maps.Keys(s.Properties)) {
		if v, present := obj[name]; present {
			s.Properties[name].check(joinPath(path, name), v, errs)
		}
	}
}

func (s *Schema) checkEnum(path string, value any, errs *ValidationErrors) {
	if len(s.Enum) == 0 {
		return
	}
	for _, allowed := range s.Enum {
		if allowed == value {
			return
		}
	}
	errs.add(path, "must be one of %v", s.Enum)
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func jsonType(value any) string {
	switch value.(type) {
	case map[string]any:
		return typeObject
	case []any:
		return typeArray
	case string:
		return typeString
	case float64, json.Number:
		return typeNumber
	case bool:
		return typeBoolean
	default:
		return fmt.Sprintf("%T", value)
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
