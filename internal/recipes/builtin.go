package recipes

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// LoadBuiltinRecipes returns the recipes bundled with the binary.
func LoadBuiltinRecipes() ([]*Recipe, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin recipes: %w", err)
	}

	recipes := make([]*Recipe, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin recipe %s: %w", entry.Name(), err)
		}
		recipe, err := parseRecipe(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin recipe %s: %w", entry.Name(), err)
		}
		recipe.Source = "builtin"
		recipes = append(recipes, recipe)
	}

	sort.Slice(recipes, func(i, j int) bool {
		return recipes[i].Name < recipes[j].Name
	})

	return recipes, nil
}
