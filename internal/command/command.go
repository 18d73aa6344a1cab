// Package command renders task command templates.
package command

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/fentz26/wfsandbox/internal/apperr"
)

// Data is what a command template can reference.
type Data struct {
	Workflow string
	Task     string
	Inputs   []string
	Outputs  []string
	Params   map[string]string
}

// Render evaluates text against data. Template errors are AppBadFormatting;
// a template that renders to nothing is BashAppNoReturn.
func Render(text string, data Data) (string, error) {
	tmpl, err := template.New(data.Task).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", apperr.Wrap(apperr.AppBadFormatting, data.Task, "app formatting failed", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", apperr.Wrap(apperr.AppBadFormatting, data.Task, "app formatting failed", err)
	}

	out := buf.String()
	if strings.TrimSpace(out) == "" {
		return "", apperr.New(apperr.BashAppNoReturn, data.Task, "bash app did not return a command")
	}
	return out, nil
}
