// Package server exposes recipe runs and run history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/metrics"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type runRequest struct {
	Vars map[string]string `json:"vars"`
}

type runDetail struct {
	Run    *models.Run     `json:"run"`
	Events []*models.Event `json:"events"`
}

type Deps struct {
	Recipes     RecipeSource
	Runner      RecipeRunner
	Environment EnvironmentFactory
	Runs        RunReader
	Events      EventLister
	Logger      *zerolog.Logger

	// RunTimeout bounds each run. Zero leaves runs bounded by the request.
	RunTimeout time.Duration

	Version   string
	Commit    string
	BuildDate string
}

func NewRouter(deps Deps) http.Handler {
	logger := logging.Component("server")
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	// One browser session serves one run at a time.
	var busy sync.Mutex

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- RECIPES ----------------

	r.Get("/recipes", func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Recipes.List()
		if err != nil {
			logger.Error().Err(err).Msg("list recipes failed")
			http.Error(w, "failed to list recipes", http.StatusInternalServerError)
			return
		}
		out := make([]recipes.Summary, 0, len(list))
		for _, recipe := range list {
			out = append(out, recipe.Summarize())
		}
		writeJSON(w, http.StatusOK, map[string]any{"recipes": out})
	})

	r.Post("/recipes/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		body, err := decodeRunRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		recipe, err := deps.Recipes.Find(name)
		if err != nil {
			if errors.Is(err, recipes.ErrRecipeNotFound) {
				http.Error(w, "recipe not found", http.StatusNotFound)
				return
			}
			logger.Error().Err(err).Str("recipe", name).Msg("load recipe failed")
			http.Error(w, "failed to load recipe", http.StatusInternalServerError)
			return
		}

		if !busy.TryLock() {
			metrics.IncRunsRejected()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "a run is already in progress", http.StatusConflict)
			return
		}
		defer busy.Unlock()

		ctx := r.Context()
		if deps.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deps.RunTimeout)
			defer cancel()
		}

		env, release, err := deps.Environment(ctx)
		if err != nil {
			logger.Error().Err(err).Str("recipe", name).Msg("open environment failed")
			http.Error(w, "browser unavailable", http.StatusBadGateway)
			return
		}
		if release != nil {
			defer release()
		}

		out, err := deps.Runner.Run(ctx, runner.Request{
			Recipe: recipe,
			Vars:   body.Vars,
			Env:    env,
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		logger.Info().
			Str("run_id", out.RunID).
			Str("recipe", name).
			Str("status", string(out.Status)).
			Msg("run completed via API")
		writeJSON(w, http.StatusOK, out)
	})

	// ---------------- HISTORY ----------------

	if deps.Runs != nil {
		r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
			query := db.RunQuery{
				Recipe: strings.TrimSpace(r.URL.Query().Get("recipe")),
				Status: models.RunStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
			}
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				limit, err := strconv.Atoi(raw)
				if err != nil || limit < 0 {
					http.Error(w, "invalid limit", http.StatusBadRequest)
					return
				}
				query.Limit = limit
			}

			runs, err := deps.Runs.List(r.Context(), query)
			if err != nil {
				logger.Error().Err(err).Msg("list runs failed")
				http.Error(w, "failed to list runs", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
			runID := chi.URLParam(r, "id")

			run, err := deps.Runs.Get(r.Context(), runID)
			if err != nil {
				if errors.Is(err, db.ErrRunNotFound) {
					http.Error(w, "run not found", http.StatusNotFound)
					return
				}
				logger.Error().Err(err).Str("run_id", runID).Msg("get run failed")
				http.Error(w, "failed to get run", http.StatusInternalServerError)
				return
			}

			detail := runDetail{Run: run, Events: []*models.Event{}}
			if deps.Events != nil {
				events, err := deps.Events.ListByRun(r.Context(), runID, 0)
				if err != nil {
					logger.Error().Err(err).Str("run_id", runID).Msg("list run events failed")
					http.Error(w, "failed to list run events", http.StatusInternalServerError)
					return
				}
				detail.Events = events
			}
			writeJSON(w, http.StatusOK, detail)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeRunRequest(r *http.Request) (runRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return runRequest{}, nil
	}

	var req runRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return runRequest{}, nil
		}
		return runRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return runRequest{}, errors.New("request body must contain exactly one JSON object")
	}
	return req, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
