// Package browser implements uienv.Environment against a Chrome instance
// reachable over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/uienv"
	"github.com/rs/zerolog"
)

// ErrNoPage is returned when AttachURL matches no open tab.
var ErrNoPage = errors.New("no matching page target")

// Config controls how the browser session is established.
type Config struct {
	// URL is the DevTools endpoint, e.g. ws://127.0.0.1:9222.
	URL string

	// AttachURL selects an existing tab whose URL contains it. Empty attaches
	// to the first open page, or opens a new one if none exists.
	AttachURL string

	// ConnectTimeout bounds target discovery. Default: 10s.
	ConnectTimeout time.Duration

	Logger *zerolog.Logger
}

// Env is a live browser tab.
type Env struct {
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID
	logger      zerolog.Logger
}

var _ uienv.Environment = (*Env)(nil)

// Connect attaches to the browser and selects the tab to drive.
func Connect(ctx context.Context, cfg Config) (*Env, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("devtools url is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	logger := logging.Component("browser")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	// The allocator outlives ctx; Close releases it.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), cfg.URL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	discoverCtx, cancelDiscover := context.WithTimeout(browserCtx, cfg.ConnectTimeout)
	stop := context.AfterFunc(ctx, cancelDiscover)
	targets, err := chromedp.Targets(discoverCtx)
	stop()
	cancelDiscover()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("list targets at %s: %w", cfg.URL, err)
	}

	info := pickTarget(targets, cfg.AttachURL)
	if info == nil && cfg.AttachURL != "" {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: url containing %q", ErrNoPage, cfg.AttachURL)
	}

	env := &Env{allocCancel: func() { browserCancel(); allocCancel() }, logger: logger}
	if info != nil {
		env.tab, env.tabCancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(info.TargetID))
		env.targetID = info.TargetID
		logger.Info().Str("target", string(info.TargetID)).Str("url", info.URL).Msg("attached to page")
	} else {
		env.tab, env.tabCancel = chromedp.NewContext(browserCtx)
		logger.Info().Msg("opened new page")
	}

	if err := env.run(ctx); err != nil {
		env.Close()
		return nil, fmt.Errorf("attach to page: %w", err)
	}
	return env, nil
}

func pickTarget(targets []*target.Info, attachURL string) *target.Info {
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if attachURL == "" || strings.Contains(t.URL, attachURL) {
			return t
		}
	}
	return nil
}

// TargetID returns the attached tab's ID, empty for a new tab.
func (e *Env) TargetID() string {
	return string(e.targetID)
}

// Close disconnects from the browser.
func (e *Env) Close() {
	if e.tabCancel != nil {
		e.tabCancel()
	}
	if e.allocCancel != nil {
		e.allocCancel()
	}
}

// run executes actions on the tab, aborting when ctx ends.
func (e *Env) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(e.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// Find returns the first element matching d.
func (e *Env) Find(ctx context.Context, d uienv.Descriptor) (*uienv.Element, error) {
	script, err := findScript(d)
	if err != nil {
		return nil, err
	}
	var candidates []candidate
	if err := e.run(ctx, chromedp.Evaluate(script, &candidates)); err != nil {
		return nil, fmt.Errorf("find %s: %w", d, err)
	}
	return pick(candidates, d), nil
}

// IsVisible reports whether el is attached and rendered.
func (e *Env) IsVisible(ctx context.Context, el uienv.Element) (bool, error) {
	var res refResult
	if err := e.run(ctx, chromedp.Evaluate(visibleScript(el.Ref), &res)); err != nil {
		return false, fmt.Errorf("visibility of %s: %w", el.Ref, err)
	}
	if !res.Found {
		return false, fmt.Errorf("%w: %s", uienv.ErrNoSuchElement, el.Ref)
	}
	return res.Visible, nil
}

// Invoke clicks or focuses el.
func (e *Env) Invoke(ctx context.Context, el uienv.Element, action uienv.Action) error {
	script, err := invokeScript(el.Ref, action)
	if err != nil {
		return err
	}
	var res refResult
	if err := e.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return fmt.Errorf("%s %s: %w", action, el.Ref, err)
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", uienv.ErrNoSuchElement, el.Ref)
	}
	e.logger.Debug().Str("ref", el.Ref).Str("action", string(action)).Msg("invoked element")
	return nil
}

// CurrentLocation returns the page URL.
func (e *Env) CurrentLocation(ctx context.Context) (string, error) {
	var url string
	if err := e.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Navigate assigns window.location and returns without waiting for load.
func (e *Env) Navigate(ctx context.Context, url string) error {
	script, err := navigateScript(url)
	if err != nil {
		return err
	}
	var ok bool
	if err := e.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	e.logger.Debug().Str("url", url).Msg("navigation requested")
	return nil
}
