package form

import "strings"

// ResolveSubject replaces each balanced {token} span in template with the
// value of the label it names. Label lookup trims the token and ignores
// case. Unknown tokens stay as written, braces included. Replacement values
// are inserted literally and never rescanned. A span does not cross a line
// break; an unclosed "{" is kept as plain text.
func ResolveSubject(template string, labels map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}

	lookup := make(map[string]string, len(labels))
	for label, value := range labels {
		lookup[strings.ToLower(strings.TrimSpace(label))] = value
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		if template[i] != '{' {
			b.WriteByte(template[i])
			i++
			continue
		}

		end := matchBrace(template, i)
		if end < 0 {
			b.WriteByte('{')
			i++
			continue
		}

		key := strings.ToLower(strings.TrimSpace(template[i+1 : end]))
		if value, ok := lookup[key]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(template[i : end+1])
		}
		i = end + 1
	}

	return b.String()
}

// matchBrace returns the index of the "}" closing the "{" at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	for j := start; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		case '\n':
			return -1
		}
	}
	return -1
}
