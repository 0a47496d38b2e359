package field

import (
	"regexp"
	"strings"
)

// TagName is the shortcode name that declares a form field.
const TagName = "contact-field"

// Attr is one tag attribute. Name is empty for positional words.
type Attr struct {
	Name  string
	Value string
}

// Tag is a tokenized [contact-field] occurrence.
type Tag struct {
	Attrs   []Attr
	Content string
	// Start and End are byte offsets of the tag in the scanned text.
	Start int
	End   int
}

// Get returns the value of the named attribute.
func (t Tag) Get(name string) (string, bool) {
	for _, a := range t.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces the named attribute in place or appends it.
func (t *Tag) Set(name, value string) {
	for i := range t.Attrs {
		if t.Attrs[i].Name == name {
			t.Attrs[i].Value = value
			return
		}
	}
	t.Attrs = append(t.Attrs, Attr{Name: name, Value: value})
}

// HasWord reports whether a bare positional word equal to w is present.
func (t Tag) HasWord(w string) bool {
	for _, a := range t.Attrs {
		if a.Name == "" && strings.EqualFold(a.Value, w) {
			return true
		}
	}
	return false
}

// String serializes the tag with every named value double-quoted and
// every value entity-escaped.
func (t Tag) String() string {
	var b strings.Builder
	b.WriteString("[" + TagName)
	for _, a := range t.Attrs {
		b.WriteByte(' ')
		if a.Name == "" {
			b.WriteString(Escape(a.Value))
			continue
		}
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(Escape(a.Value))
		b.WriteByte('"')
	}
	if t.Content == "" {
		b.WriteString("/]")
		return b.String()
	}
	b.WriteByte(']')
	b.WriteString(Escape(t.Content))
	b.WriteString("[/" + TagName + "]")
	return b.String()
}

// Alternatives are tried left to right at each position: double quoted,
// single quoted and bare named values, then quoted and bare positional words.
var attrPattern = regexp.MustCompile(
	`([\w-]+)\s*=\s*"([^"]*)"(?:\s|$)` +
		`|([\w-]+)\s*=\s*'([^']*)'(?:\s|$)` +
		`|([\w-]+)\s*=\s*([^\s'"]+)(?:\s|$)` +
		`|"([^"]*)"(?:\s|$)` +
		`|'([^']*)'(?:\s|$)` +
		`|(\S+)(?:\s|$)`)

// parseAttrs tokenizes the attribute run of a tag. Names are lower-cased.
// A repeated name keeps its first position and takes the last value.
func parseAttrs(text string) []Attr {
	text = strings.NewReplacer("\u00a0", " ", "\u200b", " ").Replace(text)

	tag := Tag{}
	for _, m := range attrPattern.FindAllStringSubmatch(text, -1) {
		switch {
		case m[1] != "":
			tag.Set(strings.ToLower(m[1]), m[2])
		case m[3] != "":
			tag.Set(strings.ToLower(m[3]), m[4])
		case m[5] != "":
			tag.Set(strings.ToLower(m[5]), m[6])
		case m[7] != "":
			tag.Attrs = append(tag.Attrs, Attr{Value: m[7]})
		case m[8] != "":
			tag.Attrs = append(tag.Attrs, Attr{Value: m[8]})
		case m[9] != "":
			tag.Attrs = append(tag.Attrs, Attr{Value: m[9]})
		}
	}
	return tag.Attrs
}

// ParseTags finds every [contact-field] tag in content, in order. A tag is
// either self-closing ("/]") or closed by the next [/contact-field]; a tag
// with neither ends at its "]".
func ParseTags(content string) []Tag {
	open := "[" + TagName
	closing := "[/" + TagName + "]"

	var tags []Tag
	i := 0
	for i < len(content) {
		idx := strings.Index(content[i:], open)
		if idx < 0 {
			break
		}
		start := i + idx
		p := start + len(open)
		if p >= len(content) {
			break
		}
		if c := content[p]; c != ']' && c != '/' && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			i = p
			continue
		}

		end := strings.IndexByte(content[p:], ']')
		if end < 0 {
			break
		}
		end += p

		attrText := content[p:end]
		selfClosing := strings.HasSuffix(attrText, "/")
		if selfClosing {
			attrText = attrText[:len(attrText)-1]
		}

		tag := Tag{Attrs: parseAttrs(attrText), Start: start, End: end + 1}
		if !selfClosing {
			if c := strings.Index(content[tag.End:], closing); c >= 0 {
				tag.Content = content[tag.End : tag.End+c]
				tag.End += c + len(closing)
			}
		}

		tags = append(tags, tag)
		i = tag.End
	}
	return tags
}

// Escape entity-encodes quotes, angle brackets and any ampersand that
// does not already start an entity.
func Escape(s string) string {
	if !strings.ContainsAny(s, `"'<>&`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#039;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			if entityAt(s[i:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var entityPattern = regexp.MustCompile(`^&(?:#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

func entityAt(s string) bool {
	return entityPattern.MatchString(s)
}
