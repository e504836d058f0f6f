package recipes

import (
	"os"
	"path/filepath"
)

// RecipeSearchPaths returns recipe search directories in precedence order.
func RecipeSearchPaths(projectDir string) []string {
	paths := make([]string, 0, 3)
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".uiwalk", "recipes"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "uiwalk", "recipes"))
	}

	paths = append(paths, filepath.Join(string(filepath.Separator), "usr", "share", "uiwalk", "recipes"))
	return paths
}

// LoadRecipesFromSearchPaths loads recipes with first-hit precedence, then builtins.
func LoadRecipesFromSearchPaths(projectDir string) ([]*Recipe, error) {
	return loadFromPaths(RecipeSearchPaths(projectDir))
}

func loadFromPaths(paths []string) ([]*Recipe, error) {
	seen := make(map[string]*Recipe)
	order := make([]string, 0)
	add := func(recipe *Recipe) {
		if _, exists := seen[recipe.Name]; exists {
			return
		}
		seen[recipe.Name] = recipe
		order = append(order, recipe.Name)
	}

	for _, path := range paths {
		recipes, err := LoadRecipesFromDir(path)
		if err != nil {
			return nil, err
		}
		for _, recipe := range recipes {
			add(recipe)
		}
	}

	builtins, err := LoadBuiltinRecipes()
	if err != nil {
		return nil, err
	}
	for _, recipe := range builtins {
		add(recipe)
	}

	resolved := make([]*Recipe, 0, len(order))
	for _, name := range order {
		resolved = append(resolved, seen[name])
	}
	return resolved, nil
}

// FindRecipe loads a specific recipe by name.
func FindRecipe(projectDir, name string) (*Recipe, error) {
	recipes, err := LoadRecipesFromSearchPaths(projectDir)
	if err != nil {
		return nil, err
	}
	for _, recipe := range recipes {
		if recipe.Name == name {
			return recipe, nil
		}
	}
	return nil, ErrRecipeNotFound
}

// Library resolves recipes from the search paths rooted at ProjectDir.
type Library struct {
	ProjectDir string
}

// List returns every visible recipe.
func (l Library) List() ([]*Recipe, error) {
	return LoadRecipesFromSearchPaths(l.ProjectDir)
}

// Find returns the named recipe or ErrRecipeNotFound.
func (l Library) Find(name string) (*Recipe, error) {
	return FindRecipe(l.ProjectDir, name)
}
