// Package pcsp renders the matchup parameters into the textual model
// description consumed by the verification engine. The template grammar is
// plain text with {{identifier}} placeholders; rendering fails closed,
// reporting every unresolved placeholder instead of emitting partial output.
package pcsp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// TemplateError reports every placeholder the context could not resolve.
type TemplateError struct {
	Missing []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("missing template parameters: %s", strings.Join(e.Missing, ", "))
}

// Render substitutes all {{name}} placeholders in templateText from the
// context. If any referenced name is absent from the context, rendering
// fails with a TemplateError listing all of them.
func Render(templateText string, context map[string]string) (string, error) {
	missing := map[string]bool{}

	rendered := placeholderPattern.ReplaceAllStringFunc(templateText, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := context[key]
		if !ok {
			missing[key] = true
			return match
		}
		return value
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", &TemplateError{Missing: names}
	}
	return rendered, nil
}
