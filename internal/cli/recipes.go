package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(recipesCmd)
	recipesCmd.AddCommand(recipesListCmd)
	recipesCmd.AddCommand(recipesShowCmd)
	recipesCmd.AddCommand(recipesValidateCmd)
}

var recipesCmd = &cobra.Command{
	Use:     "recipes",
	Aliases: []string{"recipe"},
	Short:   "Inspect recipes",
	Long:    "List, show and validate step recipes.",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := recipes.Library{ProjectDir: GetConfig().Run.ProjectDir}.List()
		if err != nil {
			return fmt.Errorf("failed to load recipes: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			summaries := make([]recipes.Summary, 0, len(list))
			for _, r := range list {
				summaries = append(summaries, r.Summarize())
			}
			return WriteOutput(os.Stdout, summaries)
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stdout, "No recipes found.")
			return nil
		}

		rows := make([][]string, 0, len(list))
		for _, r := range list {
			rows = append(rows, []string{
				r.Name,
				string(r.Runtime),
				r.Version,
				fmt.Sprintf("%d", len(r.Steps)),
				r.Source,
				r.Description,
			})
		}
		return writeTable(os.Stdout, []string{"NAME", "RUNTIME", "VERSION", "STEPS", "SOURCE", "DESCRIPTION"}, rows)
	},
}

var recipesShowCmd = &cobra.Command{
	Use:   "show <recipe>",
	Short: "Show a recipe definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipe, err := recipes.Library{ProjectDir: GetConfig().Run.ProjectDir}.Find(args[0])
		if err != nil {
			if errors.Is(err, recipes.ErrRecipeNotFound) {
				return &PreflightError{
					Message:  fmt.Sprintf("recipe %q not found", args[0]),
					NextStep: "uiwalk recipes list",
				}
			}
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, recipe.Summarize())
		}

		fmt.Fprintf(os.Stdout, "# source: %s\n", recipe.Source)
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(recipe)
	},
}

// validationResult is one line of `recipes validate` output.
type validationResult struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var recipesValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate recipe files",
	Long:  "Parse and validate recipe YAML files, reporting every problem found.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := validateRecipeFiles(args)

		if IsJSONOutput() || IsJSONLOutput() {
			if err := WriteOutput(os.Stdout, results); err != nil {
				return err
			}
		} else {
			for _, result := range results {
				if result.Valid {
					fmt.Fprintf(os.Stdout, "ok    %s (%s)\n", result.Path, result.Name)
					continue
				}
				fmt.Fprintf(os.Stdout, "FAIL  %s\n", result.Path)
				for _, problem := range result.Errors {
					fmt.Fprintf(os.Stdout, "      - %s\n", problem)
				}
			}
		}

		for _, result := range results {
			if !result.Valid {
				return fmt.Errorf("recipe validation failed")
			}
		}
		return nil
	},
}

func validateRecipeFiles(paths []string) []validationResult {
	results := make([]validationResult, 0, len(paths))
	for _, path := range paths {
		result := validationResult{Path: path}
		recipe, err := recipes.LoadRecipe(path)
		if err != nil {
			result.Errors = splitErrors(err)
		} else {
			result.Name = recipe.Name
			result.Valid = true
		}
		results = append(results, result)
	}
	return results
}

// splitErrors flattens joined errors into one message per problem.
func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, splitErrors(e)...)
		}
		return out
	}
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
