package actions

import (
	"encoding/json"
	"fmt"
)

// FieldError describes one failed field-level validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level failures so VALIDATION_ERROR
// responses carry the detail the spec requires.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msg := e.Fields[0].Field + ": " + e.Fields[0].Message
	for _, f := range e.Fields[1:] {
		msg += "; " + f.Field + ": " + f.Message
	}
	return msg
}

// Rule validates a single field of a decoded map[string]any payload.
type Rule struct {
	Field    string
	Required bool
	// Check is run when the field is present; it should return a
	// non-empty message on failure.
	Check func(value any) string
}

// StructSchema is a small, statically-declared Validator built from field
// rules — the "statically-generated validator" option the spec's plugin
// interface calls out, as an alternative to a runtime JSON-schema library.
type StructSchema struct {
	Rules []Rule
}

func (s *StructSchema) Validate(raw json.RawMessage) (any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "<root>", Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	delete(decoded, "action")

	var fieldErrors []FieldError
	for _, rule := range s.Rules {
		value, present := decoded[rule.Field]
		if !present {
			if rule.Required {
				fieldErrors = append(fieldErrors, FieldError{Field: rule.Field, Message: "required field missing"})
			}
			continue
		}
		if rule.Check != nil {
			if msg := rule.Check(value); msg != "" {
				fieldErrors = append(fieldErrors, FieldError{Field: rule.Field, Message: msg})
			}
		}
	}

	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	return decoded, nil
}
