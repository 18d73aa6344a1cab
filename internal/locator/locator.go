// Package locator finds and rewrites workflow:// references in command text.
package locator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

// Match is one locator occurrence in a command text.
type Match struct {
	// Start and End delimit the replaced span, opening and closing quote included.
	Start int
	End   int
	// Raw is text[Start:End].
	Raw string
	// Quote is the quote character wrapping the locator, or 0.
	Quote   byte
	Locator models.Locator
}

// Replacement returns the text that should take the place of the span,
// rewrapped in the same quotes.
func (m Match) Replacement(path string) string {
	if m.Quote == 0 {
		return path
	}
	if len(m.Raw) > 1 && m.Raw[len(m.Raw)-1] == m.Quote {
		return string(m.Quote) + path + string(m.Quote)
	}
	return string(m.Quote) + path
}

// Scan returns every locator in text, left to right, duplicates retained.
func Scan(text string) ([]Match, error) {
	var matches []Match
	pos := 0
	for pos < len(text) {
		i := strings.Index(text[pos:], models.Scheme)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + tokenEnd(text[start:])

		m := Match{Start: start, End: end}
		body := text[start+len(models.Scheme) : end]
		if start > 0 && isQuote(text[start-1]) {
			m.Quote = text[start-1]
			m.Start--
			body = strings.TrimSuffix(body, string(m.Quote))
		}
		m.Raw = text[m.Start:m.End]

		loc, err := parseBody(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.MalformedLocator, "", fmt.Sprintf("locator %q", m.Raw), err)
		}
		m.Locator = loc
		matches = append(matches, m)
		pos = end
	}
	return matches, nil
}

// Parse parses a single bare locator such as workflow://wf/task/out.txt.
func Parse(raw string) (models.Locator, error) {
	if !strings.HasPrefix(raw, models.Scheme) {
		return models.Locator{}, apperr.New(apperr.MalformedLocator, "", fmt.Sprintf("locator %q: missing %s scheme", raw, models.Scheme))
	}
	loc, err := parseBody(strings.TrimPrefix(raw, models.Scheme))
	if err != nil {
		return models.Locator{}, apperr.Wrap(apperr.MalformedLocator, "", fmt.Sprintf("locator %q", raw), err)
	}
	return loc, nil
}

// Format renders a locator in canonical form.
func Format(l models.Locator) string {
	return l.String()
}

func parseBody(body string) (models.Locator, error) {
	parts := strings.SplitN(body, "/", 3)
	if len(parts) < 2 || parts[1] == "" {
		return models.Locator{}, fmt.Errorf("no task name segment")
	}
	loc := models.Locator{Workflow: parts[0], Task: parts[1]}
	if loc.Workflow == "'" {
		loc.Workflow = ""
	}
	if len(parts) == 3 {
		loc.RelativePath = parts[2]
	}
	return loc, nil
}

// Substitution replaces text[Start:End] with Text.
type Substitution struct {
	Start int
	End   int
	Text  string
}

// Rewrite applies exact-span substitutions. Spans must not overlap.
func Rewrite(text string, subs []Substitution) (string, error) {
	sorted := make([]Substitution, len(subs))
	copy(sorted, subs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	last := 0
	for _, s := range sorted {
		if s.Start < last || s.End < s.Start || s.End > len(text) {
			return "", fmt.Errorf("invalid substitution span [%d,%d)", s.Start, s.End)
		}
		b.WriteString(text[last:s.Start])
		b.WriteString(s.Text)
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func tokenEnd(s string) int {
	for i, r := range s {
		if unicode.IsSpace(r) {
			return i
		}
	}
	return len(s)
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"'
}
