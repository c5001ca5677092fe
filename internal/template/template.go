// Package template renders notification content from {{name}} placeholder
// strings. Missing variables render as the empty string, never as a
// placeholder artifact in user-facing text.
package template

import "strings"

// Render substitutes every {{name}} in tmpl with vars[name]. Unknown names
// become "". Whitespace inside the braces is tolerated: {{ name }} works.
// Unterminated braces are emitted literally.
func Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for {
		open := strings.Index(tmpl, "{{")
		if open < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		b.WriteString(tmpl[:open])
		rest := tmpl[open+2:]
		close := strings.Index(rest, "}}")
		if close < 0 {
			b.WriteString(tmpl[open:])
			return b.String()
		}
		name := strings.TrimSpace(rest[:close])
		b.WriteString(vars[name])
		tmpl = rest[close+2:]
	}
}
