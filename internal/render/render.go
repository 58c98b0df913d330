// Package render substitutes {{field_name}} placeholders into template
// patterns. Rendering is pure: identical inputs always produce identical
// output, and tokens without a mapping entry pass through unchanged.
package render

import "strings"

// Render replaces every literal occurrence of {{key}} in pattern with the
// mapped value for key. Keys are case-sensitive; there is no nesting or
// escaping mechanism.
func Render(pattern string, data map[string]string) string {
	result := pattern
	for key, value := range data {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// Subject and Body keep call sites readable; both are plain Render.
func Subject(subject string, data map[string]string) string { return Render(subject, data) }
func Body(body string, data map[string]string) string       { return Render(body, data) }
