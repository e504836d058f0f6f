package recipes

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/opencode-ai/uiwalk/internal/report"
	"github.com/opencode-ai/uiwalk/internal/uienv"
)

// ResolveVars merges supplied variables with input defaults and checks that
// required inputs are present.
func ResolveVars(r *Recipe, vars map[string]string) (map[string]string, error) {
	if r == nil {
		return nil, fmt.Errorf("recipe is required")
	}

	data := make(map[string]string, len(vars)+len(r.Inputs))
	for key, value := range vars {
		data[key] = value
	}

	for _, name := range r.InputNames() {
		input := r.Inputs[name]
		if strings.TrimSpace(data[name]) != "" {
			continue
		}
		if input.Default != "" {
			data[name] = input.Default
			continue
		}
		if input.IsRequired() {
			return nil, fmt.Errorf("missing required variable %q", name)
		}
	}
	return data, nil
}

// Render returns a copy of the recipe with variables applied to targets,
// recovery URLs and the report catalog, plus the resolved variables.
// Guards are left untouched; they read variables through vars.
func Render(r *Recipe, vars map[string]string) (*Recipe, map[string]string, error) {
	data, err := ResolveVars(r, vars)
	if err != nil {
		return nil, nil, err
	}

	rd := &renderer{name: r.Name, data: data}
	out := *r
	out.Steps = make([]StepDef, len(r.Steps))
	for i, step := range r.Steps {
		rendered, err := rd.step(step)
		if err != nil {
			return nil, nil, fmt.Errorf("render recipe %q step %d: %w", r.Name, i+1, err)
		}
		out.Steps[i] = rendered
	}

	catalog, err := rd.catalog(r.Report)
	if err != nil {
		return nil, nil, fmt.Errorf("render recipe %q report: %w", r.Name, err)
	}
	out.Report = catalog
	return &out, data, nil
}

type renderer struct {
	name string
	data map[string]string
	err  error
}

func (rd *renderer) text(content string) string {
	if rd.err != nil || !strings.Contains(content, "{{") {
		return content
	}
	out, err := renderText(rd.name, content, rd.data)
	if err != nil {
		rd.err = err
	}
	return out
}

func (rd *renderer) texts(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = rd.text(v)
	}
	return out
}

func (rd *renderer) descriptor(d *uienv.Descriptor) *uienv.Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Selector = rd.text(d.Selector)
	out.Values = rd.texts(d.Values)
	return &out
}

func (rd *renderer) gate(g *GateDef) *GateDef {
	if g == nil {
		return nil
	}
	out := *g
	out.Description = rd.text(g.Description)
	out.Target = rd.descriptor(g.Target)
	return &out
}

func (rd *renderer) step(step StepDef) (StepDef, error) {
	rd.err = nil
	out := step
	out.Target = rd.descriptor(step.Target)
	out.After = rd.gate(step.After)
	if step.Precondition != nil {
		pc := *step.Precondition
		pc.Description = rd.text(pc.Description)
		pc.Recover.Navigate = rd.text(pc.Recover.Navigate)
		pc.Ready = rd.gate(pc.Ready)
		out.Precondition = &pc
	}
	return out, rd.err
}

func (rd *renderer) catalog(c report.Catalog) (report.Catalog, error) {
	rd.err = nil
	out := report.Catalog{
		Message:   rd.text(c.Message),
		NextSteps: rd.texts(c.NextSteps),
		Warnings:  rd.texts(c.Warnings),
		Fields:    make([]report.FieldDescriptor, len(c.Fields)),
	}
	for i, f := range c.Fields {
		f.Description = rd.text(f.Description)
		f.DefaultValue = rd.text(f.DefaultValue)
		f.Example = rd.text(f.Example)
		f.Note = rd.text(f.Note)
		f.Options = rd.texts(f.Options)
		out.Fields[i] = f
	}
	return out, rd.err
}

func renderText(name, content string, data map[string]string) (string, error) {
	parsed, err := template.New(name).
		Funcs(template.FuncMap{"default": defaultValue}).
		Option("missingkey=zero").
		Parse(content)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	var out strings.Builder
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}

	return out.String(), nil
}

func defaultValue(def string, value any) string {
	if value == nil {
		return def
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" {
		return def
	}
	return text
}
