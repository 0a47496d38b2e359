package form

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/welldanyogia/feedback-forms/internal/field"
)

// CheckedValue is what a ticked single checkbox resolves to.
const CheckedValue = "Yes"

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Value is one field's resolved input. Multi is used for
// checkbox-multiple fields and Single for every other type.
type Value struct {
	Definition field.Definition
	Single     string
	Multi      []string
}

// String renders the value for display; list values are joined with ", ".
func (v Value) String() string {
	if v.Definition.Type.Multi() {
		return strings.Join(v.Multi, ", ")
	}
	return v.Single
}

// Empty reports whether nothing was submitted for the field.
func (v Value) Empty() bool {
	if v.Definition.Type.Multi() {
		return len(v.Multi) == 0
	}
	return v.Single == ""
}

// Submission is the ordered set of resolved values for one form.
type Submission struct {
	Values []Value
}

// Labels maps each field label to its display value, for subject tokens.
// The first field wins when labels repeat.
func (s Submission) Labels() map[string]string {
	out := make(map[string]string, len(s.Values))
	for _, v := range s.Values {
		if _, ok := out[v.Definition.Label]; !ok {
			out[v.Definition.Label] = v.String()
		}
	}
	return out
}

// First returns the first value whose field has type t.
func (s Submission) First(t field.Type) string {
	for _, v := range s.Values {
		if v.Definition.Type == t {
			return v.String()
		}
	}
	return ""
}

// Collect resolves raw input, keyed by field id, against defs. Every
// definition is evaluated; when any fail, the returned *field.ValidationError
// lists all of them and the submission is still returned.
func Collect(defs []field.Definition, raw map[string][]string) (Submission, error) {
	sub := Submission{Values: make([]Value, 0, len(defs))}
	var problems []field.FieldError

	for _, def := range defs {
		v := resolve(def, raw[def.ID])
		sub.Values = append(sub.Values, v)

		if def.Required && v.Empty() {
			problems = append(problems, field.FieldError{
				FieldID: def.ID,
				Label:   def.Label,
				Code:    field.CodeRequired,
				Message: def.Label + " is required",
			})
			continue
		}

		if def.Type == field.TypeEmail && !v.Empty() {
			if err := validate.Var(v.Single, "email"); err != nil {
				problems = append(problems, field.FieldError{
					FieldID: def.ID,
					Label:   def.Label,
					Code:    field.CodeInvalidEmail,
					Message: def.Label + " requires a valid email address",
				})
			}
		}
	}

	if len(problems) > 0 {
		return sub, &field.ValidationError{Fields: problems}
	}
	return sub, nil
}

func resolve(def field.Definition, raw []string) Value {
	v := Value{Definition: def}

	if def.Type.Multi() {
		for _, r := range raw {
			if r = strings.TrimSpace(r); r != "" {
				v.Multi = append(v.Multi, r)
			}
		}
		return v
	}

	var first string
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			first = r
			break
		}
	}
	if def.Type == field.TypeCheckbox && first != "" {
		first = CheckedValue
	}
	v.Single = first
	return v
}
