// Package report assembles the payload returned once a recipe reaches its
// target screen, and the failure form returned when it does not.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// FieldKind classifies a form field.
type FieldKind string

const (
	KindInput      FieldKind = "input"
	KindSelect     FieldKind = "select"
	KindRichText   FieldKind = "richtext"
	KindExpandable FieldKind = "expandable"
)

// Valid reports whether k is a known kind.
func (k FieldKind) Valid() bool {
	switch k {
	case KindInput, KindSelect, KindRichText, KindExpandable:
		return true
	}
	return false
}

// FieldDescriptor describes one field of the discovered form.
type FieldDescriptor struct {
	Name         string    `json:"-" yaml:"name"`
	Kind         FieldKind `json:"type" yaml:"kind"`
	Required     bool      `json:"-" yaml:"required"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	Selector     string    `json:"selector,omitempty" yaml:"selector,omitempty"`
	DefaultValue string    `json:"defaultValue,omitempty" yaml:"default_value,omitempty"`
	Options      []string  `json:"options,omitempty" yaml:"options,omitempty"`
	Example      string    `json:"example,omitempty" yaml:"example,omitempty"`
	Note         string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// FieldSet is an ordered set of fields keyed by name. It encodes as a JSON
// object whose keys keep catalog order.
type FieldSet []FieldDescriptor

// MarshalJSON writes the set as an ordered object.
func (s FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns field names in order.
func (s FieldSet) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Get returns the named field.
func (s FieldSet) Get(name string) (FieldDescriptor, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Catalog is the recipe-supplied description of the target form.
type Catalog struct {
	Message   string            `yaml:"message"`
	Fields    []FieldDescriptor `yaml:"fields"`
	NextSteps []string          `yaml:"next_steps"`
	Warnings  []string          `yaml:"warnings"`
}

// Validate checks field names and kinds.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %q: duplicate name", f.Name)
		}
		seen[f.Name] = true
		if !f.Kind.Valid() {
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// Fields groups a catalog's fields by requirement.
type Fields struct {
	Required FieldSet `json:"required"`
	Optional FieldSet `json:"optional"`
}

// Report is the success payload.
type Report struct {
	Success             bool     `json:"success"`
	Message             string   `json:"message"`
	URL                 string   `json:"url"`
	Fields              Fields   `json:"fields"`
	RequiredFieldsCount int      `json:"requiredFieldsCount"`
	OptionalFieldsCount int      `json:"optionalFieldsCount"`
	NextSteps           []string `json:"next_steps"`
	Warnings            []string `json:"warnings"`
}

// Failure is the payload returned when a step could not be satisfied.
type Failure struct {
	Success   bool   `json:"success"`
	StepLabel string `json:"stepLabel"`
	Reason    string `json:"reason"`
}

// Build assembles a report from the catalog and the location observed after
// the final step. It has no side effects and returns equal reports for equal
// inputs.
func Build(catalog Catalog, url string) Report {
	fields := Fields{Required: FieldSet{}, Optional: FieldSet{}}
	for _, f := range catalog.Fields {
		f.Options = slices.Clone(f.Options)
		if f.Required {
			fields.Required = append(fields.Required, f)
		} else {
			fields.Optional = append(fields.Optional, f)
		}
	}

	return Report{
		Success:             true,
		Message:             catalog.Message,
		URL:                 url,
		Fields:              fields,
		RequiredFieldsCount: len(fields.Required),
		OptionalFieldsCount: len(fields.Optional),
		NextSteps:           nonNil(catalog.NextSteps),
		Warnings:            nonNil(catalog.Warnings),
	}
}

// FailureReport renders a step failure.
func FailureReport(stepLabel, reason string) Failure {
	return Failure{StepLabel: stepLabel, Reason: reason}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
