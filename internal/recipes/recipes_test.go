package recipes

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencode-ai/uiwalk/internal/uienv"
	"github.com/stretchr/testify/require"
)

const minimalRecipe = `
name: %s
type: atomic
runtime: chrome-js
version: "1.0"
description: %s
use_cases: [testing]
output_targets: [stdout]
steps:
  - label: click it
    target:
      selector: button
    wait: 1s
`

func writeRecipe(t *testing.T, dir, file, name, description string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := strings.Replace(strings.Replace(minimalRecipe, "%s", name, 1), "%s", description, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func TestBuiltinRecipe(t *testing.T) {
	recipes, err := LoadBuiltinRecipes()
	require.NoError(t, err)

	var epic *Recipe
	for _, r := range recipes {
		if r.Name == "ones_create_epic" {
			epic = r
		}
	}
	require.NotNil(t, epic)
	require.Equal(t, "builtin", epic.Source)
	require.Equal(t, RuntimeChromeJS, epic.Runtime)

	labels := make([]string, len(epic.Steps))
	for i, s := range epic.Steps {
		labels[i] = s.Label
	}
	require.Equal(t, []string{"open project card", "select Epic tab", "open create dialog", "inspect create dialog"}, labels)
	require.Equal(t, ActionLocate, epic.Steps[3].Action)
	require.NotNil(t, epic.Steps[0].Precondition)
	require.Len(t, epic.Report.NextSteps, 7)
	require.Len(t, epic.Report.Warnings, 3)
}

func TestRenderBuiltinRecipeDefaultOwner(t *testing.T) {
	epic, err := FindRecipe(t.TempDir(), "ones_create_epic")
	require.NoError(t, err)

	rendered, vars, err := Render(epic, map[string]string{"base_url": "https://ones.example.com"})
	require.NoError(t, err)
	require.Equal(t, "蔡佳", vars["owner"])

	owner, ok := fieldByName(rendered, "owner")
	require.True(t, ok)
	require.Equal(t, "蔡佳", owner)
	require.Contains(t, rendered.Report.NextSteps[2], "defaults to 蔡佳")
}

func TestRenderBuiltinRecipe(t *testing.T) {
	epic, err := FindRecipe(t.TempDir(), "ones_create_epic")
	require.NoError(t, err)

	rendered, vars, err := Render(epic, map[string]string{
		"base_url": "https://ones.example.com",
		"owner":    "alex",
	})
	require.NoError(t, err)
	require.Equal(t, "【Scrum】", vars["project_tag"])

	first := rendered.Steps[0]
	require.Equal(t, "https://ones.example.com/project/#/workspace/home", first.Precondition.Recover.Navigate)
	require.Equal(t, []string{"【Scrum】", "D端-算法/AI应用"}, first.Target.Values)
	require.Equal(t, `location.href.includes("/workspace/home")`, first.Precondition.Guard)

	project, ok := fieldByName(rendered, "project")
	require.True(t, ok)
	require.Equal(t, "【Scrum】D端-算法/AI应用", project)
	require.Contains(t, rendered.Report.NextSteps[2], "defaults to alex")

	// source recipe is not mutated
	require.Equal(t, "{{.base_url}}/project/#/workspace/home", epic.Steps[0].Precondition.Recover.Navigate)
}

func fieldByName(r *Recipe, name string) (string, bool) {
	for _, f := range r.Report.Fields {
		if f.Name == name {
			return f.DefaultValue, true
		}
	}
	return "", false
}

func TestResolveVarsRequired(t *testing.T) {
	required := true
	r := &Recipe{Name: "x", Inputs: map[string]Input{
		"token": {Type: "string", Required: &required},
	}}

	_, err := ResolveVars(r, nil)
	require.ErrorContains(t, err, `missing required variable "token"`)

	vars, err := ResolveVars(r, map[string]string{"token": "abc", "extra": "1"})
	require.NoError(t, err)
	require.Equal(t, "abc", vars["token"])
	require.Equal(t, "1", vars["extra"])
}

func TestSearchPathPrecedence(t *testing.T) {
	project := t.TempDir()
	second := t.TempDir()
	writeRecipe(t, filepath.Join(project, ".uiwalk", "recipes"), "a.yaml", "shared", "from project")
	writeRecipe(t, second, "b.yml", "shared", "from second")
	writeRecipe(t, second, "c.yaml", "other", "only in second")
	require.NoError(t, os.WriteFile(filepath.Join(second, "notes.txt"), []byte("ignored"), 0o644))

	recipes, err := loadFromPaths([]string{filepath.Join(project, ".uiwalk", "recipes"), second})
	require.NoError(t, err)

	byName := map[string]*Recipe{}
	for _, r := range recipes {
		byName[r.Name] = r
	}
	require.Equal(t, "from project", byName["shared"].Description)
	require.Equal(t, "only in second", byName["other"].Description)
	require.Contains(t, byName, "ones_create_epic")
}

func TestFindRecipeNotFound(t *testing.T) {
	_, err := FindRecipe(t.TempDir(), "does-not-exist")
	require.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestLoadRecipesFromMissingDir(t *testing.T) {
	recipes, err := LoadRecipesFromDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Empty(t, recipes)
}

func validRecipe() Recipe {
	required := false
	return Recipe{
		Name:          "valid_recipe",
		Type:          RecipeTypeAtomic,
		Runtime:       RuntimeChromeJS,
		Version:       "1.0.0",
		Description:   "does a thing",
		UseCases:      []string{"testing"},
		OutputTargets: []OutputTarget{OutputStdout},
		Inputs:        map[string]Input{"x": {Type: "string", Required: &required}},
		Steps: []StepDef{{
			Label:  "click",
			Target: &uienv.Descriptor{Selector: "button"},
			Wait:   "1s",
			Action: ActionClick,
		}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Recipe)
		wantErr string
	}{
		{"valid", func(r *Recipe) {}, ""},
		{"bad name", func(r *Recipe) { r.Name = "has space" }, "name"},
		{"bad type", func(r *Recipe) { r.Type = "batch" }, "type"},
		{"bad runtime", func(r *Recipe) { r.Runtime = "ruby" }, "runtime"},
		{"bad version", func(r *Recipe) { r.Version = "v1" }, "version"},
		{"long description", func(r *Recipe) { r.Description = strings.Repeat("x", 201) }, "description"},
		{"no use cases", func(r *Recipe) { r.UseCases = nil }, "use_cases"},
		{"bad output", func(r *Recipe) { r.OutputTargets = []OutputTarget{"printer"} }, "output_targets[0]"},
		{"input missing required", func(r *Recipe) { r.Inputs["y"] = Input{Type: "string"} }, "inputs.y"},
		{"missing label", func(r *Recipe) { r.Steps[0].Label = "" }, "label is required"},
		{"missing wait", func(r *Recipe) { r.Steps[0].Wait = "" }, "wait"},
		{"bad settle", func(r *Recipe) { r.Steps[0].Settle = "soon" }, "settle"},
		{"click without target", func(r *Recipe) { r.Steps[0].Target = nil }, "needs a target"},
		{"unknown action", func(r *Recipe) { r.Steps[0].Action = "hover" }, "unknown action"},
		{"bad guard", func(r *Recipe) {
			r.Steps[0].Precondition = &PreconditionDef{Description: "d", Guard: "location.href.includes("}
		}, "precondition guard"},
		{"gate without condition", func(r *Recipe) {
			r.Steps[0].After = &GateDef{Timeout: "1s"}
		}, "after gate needs a target or a guard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecipe()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	r := validRecipe()
	r.Type = "batch"
	r.Version = "latest"

	err := r.Validate()
	var verr *RecipeValidationError
	require.True(t, errors.As(err, &verr))
	require.ErrorContains(t, err, "type")
	require.ErrorContains(t, err, "version")
}

func TestValidateSentinels(t *testing.T) {
	r := validRecipe()
	r.Name = ""
	require.ErrorIs(t, r.Validate(), ErrRecipeNameRequired)

	r = validRecipe()
	r.Steps = nil
	require.ErrorIs(t, r.Validate(), ErrRecipeNoSteps)
}

func TestNormalizeDefaultsActionToClick(t *testing.T) {
	r, err := parseRecipe([]byte(strings.Replace(strings.Replace(minimalRecipe, "%s", "n", 1), "%s", "d", 1)))
	require.NoError(t, err)
	require.Equal(t, ActionClick, r.Steps[0].Action)
}
