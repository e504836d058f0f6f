package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/events"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/report"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/opencode-ai/uiwalk/internal/uienv"
	"github.com/opencode-ai/uiwalk/internal/uienv/memenv"
	"github.com/rs/zerolog"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func openDialogRecipe() *recipes.Recipe {
	required := true
	return &recipes.Recipe{
		Name:        "open_dialog",
		Type:        recipes.RecipeTypeAtomic,
		Runtime:     recipes.RuntimeChromeJS,
		Version:     "1.0",
		Description: "Open the create dialog",
		Inputs: map[string]recipes.Input{
			"label": {Type: "string", Default: "New"},
			"team":  {Type: "string", Required: &required},
		},
		Steps: []recipes.StepDef{{
			Label: "open dialog",
			Target: &uienv.Descriptor{
				Selector: "button",
				Match:    uienv.MatchExactText,
				Values:   []string{"{{.label}}"},
				Visible:  true,
			},
			Wait:   "1s",
			Action: recipes.ActionClick,
		}},
		Report: report.Catalog{
			Message: "dialog open for {{.team}}",
			Fields:  report.FieldSet{{Name: "title", Kind: report.KindInput, Required: true}},
		},
	}
}

type staticRecipes struct {
	list []*recipes.Recipe
	err  error
}

func (s staticRecipes) List() ([]*recipes.Recipe, error) {
	return s.list, s.err
}

func (s staticRecipes) Find(name string) (*recipes.Recipe, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.list {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, recipes.ErrRecipeNotFound
}

func memEnvironment(clicks *int) EnvironmentFactory {
	return func(ctx context.Context) (uienv.Environment, func(), error) {
		env := memenv.New(nil, "https://app.example.com/home")
		env.Add(memenv.Node{
			ID:        "new",
			Selectors: []string{"button"},
			Text:      "New",
			OnClick: func(e *memenv.Env) {
				e.SetLocation("https://app.example.com/home#create")
				if clicks != nil {
					*clicks++
				}
			},
		})
		return env, func() {}, nil
	}
}

func newTestRouter(deps Deps) http.Handler {
	if deps.Recipes == nil {
		deps.Recipes = staticRecipes{list: []*recipes.Recipe{openDialogRecipe()}}
	}
	if deps.Runner == nil {
		deps.Runner = runner.New(runner.WithLogger(zerolog.Nop()))
	}
	if deps.Environment == nil {
		deps.Environment = memEnvironment(nil)
	}
	deps.Logger = nopLogger()
	return NewRouter(deps)
}

func postRun(t *testing.T, router http.Handler, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/recipes/"+name+"/run", reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestRouter_VersionDefaults(t *testing.T) {
	router := newTestRouter(Deps{Version: "1.2.0"})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.0" || resp["commit"] != "none" || resp["build_date"] != "unknown" {
		t.Fatalf("unexpected version payload: %v", resp)
	}
}

func TestRouter_ListRecipes(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp struct {
		Recipes []recipes.Summary `json:"recipes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Recipes) != 1 {
		t.Fatalf("expected 1 recipe got %d", len(resp.Recipes))
	}
	got := resp.Recipes[0]
	if got.Name != "open_dialog" || len(got.Steps) != 1 || got.Steps[0] != "open dialog" {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if strings.Join(got.Inputs, ",") != "label,team" {
		t.Fatalf("unexpected inputs: %v", got.Inputs)
	}
}

func TestRouter_ListRecipesError(t *testing.T) {
	router := newTestRouter(Deps{Recipes: staticRecipes{err: errors.New("bad yaml")}})

	req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestRouter_RunRecipe(t *testing.T) {
	clicks := 0
	router := newTestRouter(Deps{Environment: memEnvironment(&clicks)})

	rec := postRun(t, router, "open_dialog", `{"vars":{"team":"platform"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID   string `json:"run_id"`
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Data    struct {
			Message             string `json:"message"`
			URL                 string `json:"url"`
			RequiredFieldsCount int    `json:"requiredFieldsCount"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Status != "success" || resp.RunID == "" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Data.URL != "https://app.example.com/home#create" {
		t.Fatalf("unexpected url %q", resp.Data.URL)
	}
	if resp.Data.Message != "dialog open for platform" {
		t.Fatalf("unexpected message %q", resp.Data.Message)
	}
	if resp.Data.RequiredFieldsCount != 1 {
		t.Fatalf("expected 1 required field got %d", resp.Data.RequiredFieldsCount)
	}
	if clicks != 1 {
		t.Fatalf("expected exactly one click got %d", clicks)
	}
}

func TestRouter_RunRecipeNotFound(t *testing.T) {
	router := newTestRouter(Deps{})

	rec := postRun(t, router, "missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_RunRecipeInvalidBody(t *testing.T) {
	router := newTestRouter(Deps{})

	rec := postRun(t, router, "open_dialog", `{"variables":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_RunRecipeMissingVariable(t *testing.T) {
	router := newTestRouter(Deps{})

	rec := postRun(t, router, "open_dialog", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `missing required variable \"team\"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRouter_RunRecipeEnvironmentUnavailable(t *testing.T) {
	router := newTestRouter(Deps{
		Environment: func(ctx context.Context) (uienv.Environment, func(), error) {
			return nil, nil, errors.New("connection refused")
		},
	})

	rec := postRun(t, router, "open_dialog", `{"vars":{"team":"x"}}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502 got %d", rec.Code)
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, req runner.Request) (*runner.Outcome, error) {
	close(b.started)
	<-b.release
	return &runner.Outcome{RunID: "r1", Success: true, Status: models.RunStatusSuccess}, nil
}

func TestRouter_RunRecipeRejectsConcurrentRun(t *testing.T) {
	blocking := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	router := newTestRouter(Deps{Runner: blocking})

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- postRun(t, router, "open_dialog", "") }()

	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	rec := postRun(t, router, "open_dialog", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	close(blocking.release)
	if got := <-first; got.Code != http.StatusOK {
		t.Fatalf("expected first run to succeed, got %d", got.Code)
	}
}

func TestRouter_History(t *testing.T) {
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := database.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runs := db.NewRunRepository(database)
	eventRepo := db.NewEventRepository(database)

	router := newTestRouter(Deps{
		Runner: runner.New(
			runner.WithLogger(zerolog.Nop()),
			runner.WithStore(runs),
			runner.WithSink(events.NewRepositorySink(eventRepo)),
		),
		Runs:   runs,
		Events: eventRepo,
	})

	rec := postRun(t, router, "open_dialog", `{"vars":{"team":"platform"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var outcome runner.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/runs?recipe=open_dialog", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var list struct {
		Runs []*models.Run `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].ID != outcome.RunID {
		t.Fatalf("unexpected runs: %+v", list.Runs)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/"+outcome.RunID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var detail runDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Run.Status != models.RunStatusSuccess {
		t.Fatalf("unexpected status %s", detail.Run.Status)
	}
	if len(detail.Events) == 0 || detail.Events[0].Type != models.EventTypeRunStarted {
		t.Fatalf("unexpected events: %+v", detail.Events)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs?limit=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_HistoryDisabled(t *testing.T) {
	router := newTestRouter(Deps{})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(Deps{})
	postRun(t, router, "open_dialog", `{"vars":{"team":"platform"}}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("uiwalk_runs_total")) {
		t.Fatal("expected uiwalk_runs_total in metrics output")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, newTestRouter(Deps{}), zerolog.Nop()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
