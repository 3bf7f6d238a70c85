// Package prompt holds the named prompt templates the game renders before
// calling the model. The registry is read-only after boot.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Template is one named prompt with declared parameters. Required params
// must be present at render time; optional params default to empty.
type Template struct {
	Name     string
	Required []string
	Optional []string
	Text     string
	// Schema describes the expected JSON response shape, nil for plain
	// text prompts.
	Schema map[string]any

	compiled *template.Template
}

// Registry maps template names to compiled templates.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry compiles and registers the built-in templates.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: map[string]*Template{}}
	for _, t := range builtinTemplates() {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles and adds a template. Names must be unique.
func (r *Registry) Register(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if _, exists := r.templates[t.Name]; exists {
		return fmt.Errorf("template %q already registered", t.Name)
	}
	compiled, err := template.New(t.Name).Option("missingkey=zero").Parse(t.Text)
	if err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	t.compiled = compiled
	r.templates[t.Name] = &t
	return nil
}

// Lookup returns a registered template.
func (r *Registry) Lookup(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Render produces the prompt text for a named template, validating required
// parameters.
func (r *Registry) Render(name string, params map[string]any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var missing []string
	for _, p := range t.Required {
		if v, ok := params[p]; !ok || v == nil || v == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q missing required params: %s", name, strings.Join(missing, ", "))
	}
	data := make(map[string]any, len(params))
	for k, v := range params {
		data[k] = v
	}
	for _, p := range t.Optional {
		if _, ok := data[p]; !ok {
			data[p] = ""
		}
	}
	var b strings.Builder
	if err := t.compiled.Execute(&b, data); err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	return b.String(), nil
}

// Schema returns the response schema for a named template, nil when absent.
func (r *Registry) Schema(name string) map[string]any {
	if t, ok := r.templates[name]; ok {
		return t.Schema
	}
	return nil
}
