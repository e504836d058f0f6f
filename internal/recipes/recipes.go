// Package recipes loads UI walk recipes: metadata, inputs, ordered step
// definitions and the report catalog returned on success.
package recipes

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opencode-ai/uiwalk/internal/guard"
	"github.com/opencode-ai/uiwalk/internal/report"
	"github.com/opencode-ai/uiwalk/internal/uienv"
)

var (
	// ErrRecipeNameRequired is returned when a recipe has no name.
	ErrRecipeNameRequired = errors.New("recipe name is required")
	// ErrRecipeNoSteps is returned when a recipe has no steps.
	ErrRecipeNoSteps = errors.New("recipe must have at least one step")
	// ErrRecipeNotFound is returned when a recipe is not found.
	ErrRecipeNotFound = errors.New("recipe not found")
)

// RecipeValidationError describes a validation error in a recipe.
type RecipeValidationError struct {
	Field   string
	Index   int
	Message string
}

func (e *RecipeValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("recipe %s[%d]: %s", e.Field, e.Index, e.Message)
	}
	return fmt.Sprintf("recipe %s: %s", e.Field, e.Message)
}

func invalid(field string, index int, format string, args ...any) error {
	return &RecipeValidationError{Field: field, Index: index, Message: fmt.Sprintf(format, args...)}
}

// RecipeType distinguishes single-purpose recipes from composed workflows.
type RecipeType string

const (
	RecipeTypeAtomic   RecipeType = "atomic"
	RecipeTypeWorkflow RecipeType = "workflow"
)

// Runtime names where a recipe executes.
type Runtime string

const (
	RuntimeChromeJS Runtime = "chrome-js"
	RuntimePython   Runtime = "python"
	RuntimeShell    Runtime = "shell"
)

// OutputTarget is where a run's payload is delivered.
type OutputTarget string

const (
	OutputStdout    OutputTarget = "stdout"
	OutputFile      OutputTarget = "file"
	OutputClipboard OutputTarget = "clipboard"
)

// ActionKind is the effect a step applies to its target.
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionFocus ActionKind = "focus"
	// ActionLocate only requires the target to resolve.
	ActionLocate ActionKind = "locate"
	// ActionNone performs no action; the step only waits.
	ActionNone ActionKind = "none"
)

// MaxDescriptionLength bounds Recipe.Description.
const MaxDescriptionLength = 200

var (
	namePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)
)

// Recipe is a named, ordered walk through a UI.
type Recipe struct {
	Name          string           `yaml:"name"`
	Type          RecipeType       `yaml:"type"`
	Runtime       Runtime          `yaml:"runtime"`
	Version       string           `yaml:"version"`
	Description   string           `yaml:"description"`
	UseCases      []string         `yaml:"use_cases"`
	OutputTargets []OutputTarget   `yaml:"output_targets"`
	Tags          []string         `yaml:"tags,omitempty"`
	Inputs        map[string]Input `yaml:"inputs,omitempty"`
	Steps         []StepDef        `yaml:"steps"`
	Report        report.Catalog   `yaml:"report"`
	Source        string           `yaml:"-"` // file path or "builtin"
}

// Input declares a recipe variable.
type Input struct {
	Type        string `yaml:"type"`
	Required    *bool  `yaml:"required"`
	Default     string `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// IsRequired reports whether the input must be supplied.
func (in Input) IsRequired() bool {
	return in.Required != nil && *in.Required
}

// StepDef is the declarative form of one sequencer step.
type StepDef struct {
	Label        string           `yaml:"label"`
	Precondition *PreconditionDef `yaml:"precondition,omitempty"`

	// Target is what the action applies to. Its readiness gate waits Wait.
	Target   *uienv.Descriptor `yaml:"target,omitempty"`
	Wait     string            `yaml:"wait,omitempty"`
	Interval string            `yaml:"interval,omitempty"`

	Action ActionKind `yaml:"action,omitempty"`
	Settle string     `yaml:"settle,omitempty"`
	After  *GateDef   `yaml:"after,omitempty"`
}

// PreconditionDef describes the state a step expects and how to reach it.
type PreconditionDef struct {
	Description string     `yaml:"description"`
	Guard       string     `yaml:"guard"`
	Recover     RecoverDef `yaml:"recover,omitempty"`
	Ready       *GateDef   `yaml:"ready,omitempty"`
}

// RecoverDef is the one-shot recovery action.
type RecoverDef struct {
	Navigate string `yaml:"navigate,omitempty"`
}

// GateDef is a polled condition: a target descriptor, a guard expression, or both.
type GateDef struct {
	Description string            `yaml:"description,omitempty"`
	Target      *uienv.Descriptor `yaml:"target,omitempty"`
	Guard       string            `yaml:"guard,omitempty"`
	Timeout     string            `yaml:"timeout"`
	Interval    string            `yaml:"interval,omitempty"`
}

// InputNames returns input names sorted.
func (r *Recipe) InputNames() []string {
	names := make([]string, 0, len(r.Inputs))
	for name := range r.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsOutput reports whether the recipe declares target.
func (r *Recipe) SupportsOutput(target OutputTarget) bool {
	for _, t := range r.OutputTargets {
		if t == target {
			return true
		}
	}
	return false
}

// Validate checks metadata, steps and the report catalog. Every problem found
// is returned, joined.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return ErrRecipeNameRequired
	}
	if len(r.Steps) == 0 {
		return ErrRecipeNoSteps
	}

	var errs []error
	errs = append(errs, r.validateMetadata()...)
	for i, step := range r.Steps {
		errs = append(errs, validateStep(i, step)...)
	}
	if err := r.Report.Validate(); err != nil {
		errs = append(errs, invalid("report", -1, "%v", err))
	}
	return errors.Join(errs...)
}

func (r *Recipe) validateMetadata() []error {
	var errs []error
	if !namePattern.MatchString(r.Name) {
		errs = append(errs, invalid("name", -1, "must contain only letters, digits, underscores and hyphens"))
	}
	switch r.Type {
	case RecipeTypeAtomic, RecipeTypeWorkflow:
	default:
		errs = append(errs, invalid("type", -1, "must be atomic or workflow, got %q", r.Type))
	}
	switch r.Runtime {
	case RuntimeChromeJS, RuntimePython, RuntimeShell:
	default:
		errs = append(errs, invalid("runtime", -1, "must be chrome-js, python or shell, got %q", r.Runtime))
	}
	if !versionPattern.MatchString(r.Version) {
		errs = append(errs, invalid("version", -1, "invalid format %q, expected 1.0 or 1.0.0", r.Version))
	}
	if strings.TrimSpace(r.Description) == "" || len([]rune(r.Description)) > MaxDescriptionLength {
		errs = append(errs, invalid("description", -1, "must be present and at most %d characters", MaxDescriptionLength))
	}
	if len(r.UseCases) == 0 {
		errs = append(errs, invalid("use_cases", -1, "at least one use case is required"))
	}
	if len(r.OutputTargets) == 0 {
		errs = append(errs, invalid("output_targets", -1, "at least one output target is required"))
	}
	for i, target := range r.OutputTargets {
		switch target {
		case OutputStdout, OutputFile, OutputClipboard:
		default:
			errs = append(errs, invalid("output_targets", i, "invalid target %q, expected stdout, file or clipboard", target))
		}
	}
	for _, name := range r.InputNames() {
		in := r.Inputs[name]
		if strings.TrimSpace(in.Type) == "" || in.Required == nil {
			errs = append(errs, invalid("inputs."+name, -1, "type and required are both needed"))
		}
	}
	return errs
}

func validateStep(i int, step StepDef) []error {
	var errs []error
	if strings.TrimSpace(step.Label) == "" {
		errs = append(errs, invalid("steps", i, "label is required"))
	}

	switch step.Action {
	case ActionClick, ActionFocus, ActionLocate:
		if step.Target == nil {
			errs = append(errs, invalid("steps", i, "action %s needs a target", step.Action))
		}
	case ActionNone, "":
	default:
		errs = append(errs, invalid("steps", i, "unknown action %q", step.Action))
	}

	if step.Target != nil {
		if err := step.Target.Validate(); err != nil {
			errs = append(errs, invalid("steps", i, "target: %v", err))
		}
		if _, err := positiveDuration(step.Wait); err != nil {
			errs = append(errs, invalid("steps", i, "wait: %v", err))
		}
	}
	if _, err := optionalDuration(step.Interval); err != nil {
		errs = append(errs, invalid("steps", i, "interval: %v", err))
	}
	if _, err := optionalDuration(step.Settle); err != nil {
		errs = append(errs, invalid("steps", i, "settle: %v", err))
	}

	if pc := step.Precondition; pc != nil {
		if strings.TrimSpace(pc.Description) == "" {
			errs = append(errs, invalid("steps", i, "precondition description is required"))
		}
		if _, err := guard.Compile(pc.Guard); err != nil {
			errs = append(errs, invalid("steps", i, "precondition guard: %v", err))
		}
		if pc.Ready != nil {
			errs = append(errs, validateGate(i, "precondition ready", *pc.Ready)...)
		}
	}
	if step.After != nil {
		errs = append(errs, validateGate(i, "after", *step.After)...)
	}
	return errs
}

func validateGate(i int, name string, g GateDef) []error {
	var errs []error
	if g.Target == nil && strings.TrimSpace(g.Guard) == "" {
		errs = append(errs, invalid("steps", i, "%s gate needs a target or a guard", name))
	}
	if g.Target != nil {
		if err := g.Target.Validate(); err != nil {
			errs = append(errs, invalid("steps", i, "%s target: %v", name, err))
		}
	}
	if strings.TrimSpace(g.Guard) != "" {
		if _, err := guard.Compile(g.Guard); err != nil {
			errs = append(errs, invalid("steps", i, "%s guard: %v", name, err))
		}
	}
	if _, err := positiveDuration(g.Timeout); err != nil {
		errs = append(errs, invalid("steps", i, "%s timeout: %v", name, err))
	}
	if _, err := optionalDuration(g.Interval); err != nil {
		errs = append(errs, invalid("steps", i, "%s interval: %v", name, err))
	}
	return errs
}

// ParseDuration parses an optional duration field. Empty means zero.
func ParseDuration(raw string) (time.Duration, error) {
	return optionalDuration(raw)
}

func optionalDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", raw)
	}
	return d, nil
}

func positiveDuration(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("duration is required")
	}
	d, err := optionalDuration(raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("duration must be greater than 0")
	}
	return d, nil
}

// Summary is the listing view of a recipe.
type Summary struct {
	Name          string         `json:"name"`
	Type          RecipeType     `json:"type"`
	Runtime       Runtime        `json:"runtime"`
	Version       string         `json:"version"`
	Description   string         `json:"description"`
	UseCases      []string       `json:"use_cases,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Inputs        []string       `json:"inputs"`
	Steps         []string       `json:"steps"`
	OutputTargets []OutputTarget `json:"output_targets,omitempty"`
	Source        string         `json:"source"`
}

// Summarize returns the listing view.
func (r *Recipe) Summarize() Summary {
	steps := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		steps = append(steps, step.Label)
	}
	return Summary{
		Name:          r.Name,
		Type:          r.Type,
		Runtime:       r.Runtime,
		Version:       r.Version,
		Description:   r.Description,
		UseCases:      r.UseCases,
		Tags:          r.Tags,
		Inputs:        r.InputNames(),
		Steps:         steps,
		OutputTargets: r.OutputTargets,
		Source:        r.Source,
	}
}
