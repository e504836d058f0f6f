package server

import (
	"context"

	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/opencode-ai/uiwalk/internal/uienv"
)

type RecipeSource interface {
	List() ([]*recipes.Recipe, error)
	Find(name string) (*recipes.Recipe, error)
}

type RecipeRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Outcome, error)
}

// EnvironmentFactory opens the UI environment for one run. release is called
// when the run ends.
type EnvironmentFactory func(ctx context.Context) (env uienv.Environment, release func(), err error)

type RunReader interface {
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, q db.RunQuery) ([]*models.Run, error)
}

type EventLister interface {
	ListByRun(ctx context.Context, runID string, limit int) ([]*models.Event, error)
}
