package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/uiwalk/internal/guard"
	"github.com/opencode-ai/uiwalk/internal/poll"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/sequencer"
	"github.com/opencode-ai/uiwalk/internal/uienv"
)

// compiler turns rendered step definitions into sequencer steps bound to env.
type compiler struct {
	env      uienv.Environment
	vars     map[string]string
	interval time.Duration
}

func (c *compiler) steps(defs []recipes.StepDef) ([]sequencer.Step, error) {
	steps := make([]sequencer.Step, 0, len(defs))
	for i, def := range defs {
		step, err := c.step(def)
		if err != nil {
			return nil, fmt.Errorf("compile step %d (%s): %w", i+1, def.Label, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (c *compiler) step(def recipes.StepDef) (sequencer.Step, error) {
	step := sequencer.Step{Label: def.Label}

	interval, err := c.intervalOf(def.Interval)
	if err != nil {
		return step, err
	}

	if def.Target != nil {
		wait, err := recipes.ParseDuration(def.Wait)
		if err != nil {
			return step, err
		}
		target := *def.Target
		step.Ready = sequencer.Gate{
			Spec: poll.WaitSpec{
				Description: def.Label,
				Condition:   target.String(),
				Timeout:     wait,
				Interval:    interval,
			},
			Check: c.targetCheck(target),
		}
		step.Action = c.action(def.Action, target)
	}

	if step.Settle, err = recipes.ParseDuration(def.Settle); err != nil {
		return step, err
	}

	if def.Precondition != nil {
		pc, err := c.precondition(*def.Precondition)
		if err != nil {
			return step, err
		}
		step.Precondition = pc
	}

	if def.After != nil {
		gate, err := c.gate(def.Label+" post-condition", *def.After)
		if err != nil {
			return step, err
		}
		step.After = gate
	}
	return step, nil
}

func (c *compiler) intervalOf(raw string) (time.Duration, error) {
	d, err := recipes.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return c.interval, nil
	}
	return d, nil
}

func (c *compiler) precondition(def recipes.PreconditionDef) (*sequencer.Precondition, error) {
	g, err := guard.Compile(def.Guard)
	if err != nil {
		return nil, err
	}
	pc := &sequencer.Precondition{
		Description: def.Description,
		Check:       c.guardCheck(g),
	}
	if url := def.Recover.Navigate; url != "" {
		pc.Recover = func(ctx context.Context) error {
			return c.env.Navigate(ctx, url)
		}
	}
	if def.Ready != nil {
		gate, err := c.gate(def.Description, *def.Ready)
		if err != nil {
			return nil, err
		}
		pc.Ready = gate
	}
	return pc, nil
}

func (c *compiler) gate(fallback string, def recipes.GateDef) (sequencer.Gate, error) {
	timeout, err := recipes.ParseDuration(def.Timeout)
	if err != nil {
		return sequencer.Gate{}, err
	}
	interval, err := c.intervalOf(def.Interval)
	if err != nil {
		return sequencer.Gate{}, err
	}

	description := def.Description
	if description == "" {
		description = fallback
	}

	var checks []poll.Check
	var condition string
	if def.Target != nil {
		checks = append(checks, c.targetCheck(*def.Target))
		condition = def.Target.String()
	}
	if def.Guard != "" {
		g, err := guard.Compile(def.Guard)
		if err != nil {
			return sequencer.Gate{}, err
		}
		checks = append(checks, c.guardCheck(g))
		if condition != "" {
			condition += " && "
		}
		condition += g.Source()
	}

	return sequencer.Gate{
		Spec: poll.WaitSpec{
			Description: description,
			Condition:   condition,
			Timeout:     timeout,
			Interval:    interval,
		},
		Check: all(checks),
	}, nil
}

func all(checks []poll.Check) poll.Check {
	return func(ctx context.Context) (bool, error) {
		for _, check := range checks {
			ok, err := check(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func (c *compiler) find(ctx context.Context, d uienv.Descriptor) (*uienv.Element, error) {
	if d.Visible {
		el, visible, err := uienv.FindVisible(ctx, c.env, d)
		if err != nil || !visible {
			return nil, err
		}
		return el, nil
	}
	return c.env.Find(ctx, d)
}

func (c *compiler) targetCheck(d uienv.Descriptor) poll.Check {
	return func(ctx context.Context) (bool, error) {
		el, err := c.find(ctx, d)
		return el != nil, err
	}
}

func (c *compiler) guardCheck(g *guard.Guard) poll.Check {
	return func(ctx context.Context) (bool, error) {
		location, err := c.env.CurrentLocation(ctx)
		if err != nil {
			return false, err
		}
		return g.Evaluate(guard.Snapshot{Location: location, Vars: c.vars})
	}
}

func (c *compiler) action(kind recipes.ActionKind, d uienv.Descriptor) func(ctx context.Context) error {
	var invoke uienv.Action
	switch kind {
	case recipes.ActionClick:
		invoke = uienv.ActionClick
	case recipes.ActionFocus:
		invoke = uienv.ActionFocus
	case recipes.ActionLocate:
	default:
		return nil
	}

	return func(ctx context.Context) error {
		el, err := c.find(ctx, d)
		if err != nil {
			return err
		}
		if el == nil {
			return sequencer.NotFound(d.String())
		}
		if invoke == "" {
			return nil
		}
		if err := c.env.Invoke(ctx, *el, invoke); err != nil {
			if errors.Is(err, uienv.ErrNoSuchElement) {
				return sequencer.NotFound(d.String())
			}
			return err
		}
		return nil
	}
}
