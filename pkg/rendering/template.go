// Package rendering provides template rendering for configurable archive addresses
package rendering

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateEngine provides template rendering with Sprig functions
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates a new template engine with Sprig functions
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		funcMap: sprig.TxtFuncMap(),
	}
}

// Compile parses a template once so it can be executed many times
func (t *TemplateEngine) Compile(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(t.funcMap).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Template{tmpl: tmpl}, nil
}

// Render renders a template with the given variables
func (t *TemplateEngine) Render(content string, variables interface{}) (string, error) {
	tmpl, err := t.Compile("inline", content)
	if err != nil {
		return "", err
	}

	return tmpl.Execute(variables)
}

// Template is a parsed template
type Template struct {
	tmpl *template.Template
}

// Execute renders the template with the given variables
func (t *Template) Execute(variables interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
