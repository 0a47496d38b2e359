// Package field parses [contact-field] tags into typed field definitions.
package field

import (
	"fmt"
	"strings"
)

// Type is the closed set of field kinds a form may declare.
type Type string

const (
	TypeName             Type = "name"
	TypeEmail            Type = "email"
	TypeURL              Type = "url"
	TypeTelephone        Type = "telephone"
	TypeDate             Type = "date"
	TypeText             Type = "text"
	TypeTextarea         Type = "textarea"
	TypeCheckbox         Type = "checkbox"
	TypeCheckboxMultiple Type = "checkbox-multiple"
	TypeRadio            Type = "radio"
	TypeSelect           Type = "select"
)

// variant describes how one Type behaves.
type variant struct {
	label   string
	input   string
	multi   bool
	options bool
}

var variants = map[Type]variant{
	TypeName:             {label: "Name", input: "text"},
	TypeEmail:            {label: "Email", input: "email"},
	TypeURL:              {label: "Website", input: "url"},
	TypeTelephone:        {label: "Phone", input: "tel"},
	TypeDate:             {label: "Date", input: "text"},
	TypeText:             {label: "Text", input: "text"},
	TypeTextarea:         {label: "Message", input: "textarea"},
	TypeCheckbox:         {label: "Checkbox", input: "checkbox"},
	TypeCheckboxMultiple: {label: "Choose several", input: "checkbox", multi: true, options: true},
	TypeRadio:            {label: "Choose one", input: "radio", options: true},
	TypeSelect:           {label: "Select", input: "select", options: true},
}

// Types returns every known type in declaration order.
func Types() []Type {
	return []Type{
		TypeName, TypeEmail, TypeURL, TypeTelephone, TypeDate, TypeText,
		TypeTextarea, TypeCheckbox, TypeCheckboxMultiple, TypeRadio, TypeSelect,
	}
}

// ParseType resolves a type attribute. Matching ignores case and
// surrounding whitespace.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[t]; !ok {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := variants[t]
	return ok
}

// DefaultLabel is the label used when a tag does not provide one.
func (t Type) DefaultLabel() string { return variants[t].label }

// InputType is the HTML input type a renderer would use.
func (t Type) InputType() string { return variants[t].input }

// Multi reports whether the field resolves to a list of values.
func (t Type) Multi() bool { return variants[t].multi }

// HasOptions reports whether the field offers a fixed option list.
func (t Type) HasOptions() bool { return variants[t].options }

// Canonical reports whether the field is one of the submitter identity
// fields (name, email, url) stored outside the extra fields.
func (t Type) Canonical() bool {
	return t == TypeName || t == TypeEmail || t == TypeURL
}

// Definition is one declared input slot on a form.
type Definition struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Type       Type     `json:"type"`
	Required   bool     `json:"required"`
	Options    []string `json:"options,omitempty"`
	Values     []string `json:"values,omitempty"`
	Default    []string `json:"default,omitempty"`
	OrderIndex int      `json:"order_index"`
}

// Key is the "{order_index}_{label}" display key.
func (d Definition) Key() string {
	return fmt.Sprintf("%d_%s", d.OrderIndex, d.Label)
}

// FieldError describes one problem with one field.
type FieldError struct {
	FieldID string `json:"field_id,omitempty"`
	Label   string `json:"label,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Field error codes.
const (
	CodeRequired     = "required"
	CodeInvalidEmail = "invalid_email"
	CodeUnknownType  = "unknown_type"
)

// ValidationError is returned when a tag or a submission fails validation.
// It carries every problem found, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
