// Package form holds form containers, submitted-value collection and
// subject token substitution.
package form

import (
	"github.com/welldanyogia/feedback-forms/internal/field"
)

// DefaultID is the id of the built-in form used when a request names no form.
const DefaultID = "default"

// Form is a container of field definitions plus mail settings.
type Form struct {
	ID      string             `json:"id" db:"id"`
	Title   string             `json:"title" db:"title"`
	URL     string             `json:"url" db:"url"`
	To      string             `json:"to" db:"recipients"`
	Subject string             `json:"subject" db:"subject"`
	Content string             `json:"content" db:"content"`
	Fields  []field.Definition `json:"fields" db:"-"`
}

// defaultContent is the field set used when a form declares none.
const defaultContent = `[contact-field label="Name" type="name" required="1"/]` +
	`[contact-field label="Email" type="email" required="1"/]` +
	`[contact-field label="Website" type="url"/]` +
	`[contact-field label="Message" type="textarea"/]`

// DefaultFields returns the name, email, website and message fields.
func DefaultFields() []field.Definition {
	defs, _ := field.ParseDefinitions(defaultContent)
	return defs
}

// New builds a form from tag content. When content declares no fields
// the default field set is used.
func New(id, title, content string) (*Form, error) {
	defs, err := field.ParseDefinitions(content)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		defs = DefaultFields()
		content = defaultContent
	}
	return &Form{
		ID:      id,
		Title:   title,
		Content: field.RenderContent(content),
		Fields:  defs,
	}, nil
}

// Default returns the built-in form.
func Default(title string) *Form {
	f, _ := New(DefaultID, title, "")
	return f
}

// FirstOfType returns the first field of type t.
func (f *Form) FirstOfType(t field.Type) (field.Definition, bool) {
	for _, def := range f.Fields {
		if def.Type == t {
			return def, true
		}
	}
	return field.Definition{}, false
}
