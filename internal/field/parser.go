package field

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Canonicalize normalizes a tag's attributes:
//   - a label is appended when the tag names a type but no label
//   - options entries that are blank are removed together with the values
//     entry at the same index (blank values alone are kept)
//
// An unrecognized type yields a *ValidationError and the tag is returned
// unchanged.
func Canonicalize(tag Tag) (Tag, error) {
	out := Tag{
		Attrs:   append([]Attr(nil), tag.Attrs...),
		Content: tag.Content,
		Start:   tag.Start,
		End:     tag.End,
	}

	if raw, ok := out.Get("type"); ok {
		typ, err := ParseType(raw)
		if err != nil {
			return tag, &ValidationError{Fields: []FieldError{{
				Code:    CodeUnknownType,
				Message: err.Error(),
			}}}
		}
		if _, ok := out.Get("label"); !ok {
			out.Set("label", typ.DefaultLabel())
		}
	}

	if rawOptions, ok := out.Get("options"); ok {
		rawValues, hasValues := out.Get("values")
		options, values := dropBlankOptions(strings.Split(rawOptions, ","), splitList(rawValues, hasValues))
		out.Set("options", strings.Join(options, ","))
		if hasValues {
			out.Set("values", strings.Join(values, ","))
		}
	}

	return out, nil
}

// CanonicalString tokenizes and canonicalizes the first tag in raw.
func CanonicalString(raw string) (string, error) {
	tags := ParseTags(raw)
	if len(tags) == 0 {
		return "", &ValidationError{Fields: []FieldError{{
			Code:    CodeUnknownType,
			Message: "no " + TagName + " tag found",
		}}}
	}
	tag, err := Canonicalize(tags[0])
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// RenderContent rewrites every tag in content to its canonical form. Tags
// that fail to canonicalize are left exactly as written.
func RenderContent(content string) string {
	tags := ParseTags(content)
	if len(tags) == 0 {
		return content
	}

	var b strings.Builder
	last := 0
	for _, tag := range tags {
		b.WriteString(content[last:tag.Start])
		canonical, err := Canonicalize(tag)
		if err != nil {
			b.WriteString(content[tag.Start:tag.End])
		} else {
			b.WriteString(canonical.String())
		}
		last = tag.End
	}
	b.WriteString(content[last:])
	return b.String()
}

// Parse builds the definition for one tag at the given 1-based position.
// A tag without a type is treated as a text field.
func Parse(tag Tag, orderIndex int) (Definition, error) {
	canonical, err := Canonicalize(tag)
	if err != nil {
		return Definition{}, err
	}

	def := Definition{Type: TypeText, OrderIndex: orderIndex}
	if raw, ok := canonical.Get("type"); ok {
		def.Type, _ = ParseType(raw)
	}

	def.Label = strings.TrimSpace(attr(canonical, "label"))
	if def.Label == "" {
		def.Label = def.Type.DefaultLabel()
	}

	def.ID = strings.TrimSpace(attr(canonical, "id"))
	if def.ID == "" {
		def.ID = Slug(def.Label)
	}
	if def.ID == "" {
		def.ID = "field-" + strconv.Itoa(orderIndex)
	}

	def.Required = truthy(attr(canonical, "required")) || canonical.HasWord("required")

	if def.Type.HasOptions() {
		def.Options = trimAll(splitList(attr(canonical, "options"), true))
		def.Values = trimAll(splitList(attr(canonical, "values"), true))
		def.Values = padValues(def.Options, def.Values)
	}

	if raw, ok := canonical.Get("default"); ok && raw != "" {
		if def.Type.Multi() {
			def.Default = trimAll(strings.Split(raw, ","))
		} else {
			def.Default = []string{raw}
		}
	}

	return def, nil
}

// ParseDefinitions parses every tag in content into definitions numbered
// from 1 in document order. IDs are made unique within the set. All
// unknown-type tags are reported together.
func ParseDefinitions(content string) ([]Definition, error) {
	tags := ParseTags(content)
	defs := make([]Definition, 0, len(tags))
	seen := make(map[string]int)
	var problems []FieldError

	for i, tag := range tags {
		def, err := Parse(tag, i+1)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				for _, f := range verr.Fields {
					f.Message = fmt.Sprintf("field %d: %s", i+1, f.Message)
					problems = append(problems, f)
				}
				continue
			}
			return nil, err
		}
		seen[def.ID]++
		if n := seen[def.ID]; n > 1 {
			def.ID = def.ID + "-" + strconv.Itoa(n)
		}
		defs = append(defs, def)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return defs, nil
}

// Slug lower-cases s and collapses every run of characters other than
// letters and digits into a single dash.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// dropBlankOptions removes blank options and the values at the same
// positions. Values past the end of options are kept.
func dropBlankOptions(options, values []string) ([]string, []string) {
	keptOptions := make([]string, 0, len(options))
	keptValues := make([]string, 0, len(values))
	for k, opt := range options {
		if strings.TrimSpace(opt) == "" {
			continue
		}
		keptOptions = append(keptOptions, opt)
		if k < len(values) {
			keptValues = append(keptValues, values[k])
		}
	}
	if len(values) > len(options) {
		keptValues = append(keptValues, values[len(options):]...)
	}
	return keptOptions, keptValues
}

// padValues reuses option text wherever values is shorter than options.
func padValues(options, values []string) []string {
	if len(values) >= len(options) {
		return values
	}
	out := make([]string, len(options))
	copy(out, values)
	for i := len(values); i < len(options); i++ {
		out[i] = options[i]
	}
	return out
}

func splitList(raw string, present bool) []string {
	if !present || raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func trimAll(in []string) []string {
	for i := range in {
		in[i] = strings.TrimSpace(in[i])
	}
	return in
}

func attr(t Tag, name string) string {
	v, _ := t.Get(name)
	return v
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
