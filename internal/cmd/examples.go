package cmd

import (
	"math/rand"
	"regexp"

	"github.com/dotcommander/crew/internal/present"
)

var examples = map[string]string{
	"Bring up your crew and see who made it": `crew agents`,
	"Search issues through the github agent": `crew call github:search_issues '{"query": "is:open label:bug"}'`,
	"Pipe a request body in from a file":     `cat query.json | crew call search_docs | glow`,
}

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	desc := keys[rand.Intn(len(keys))] //nolint:gosec
	return desc
}

func cheapHighlighting(s present.Styles, code string) string {
	code = regexp.
		MustCompile(`'([^'\\]|\\.)*'`).
		ReplaceAllStringFunc(code, func(x string) string {
			return s.Quote.Render(x)
		})
	code = regexp.
		MustCompile(`\|`).
		ReplaceAllStringFunc(code, func(x string) string {
			return s.Pipe.Render(x)
		})
	return code
}
