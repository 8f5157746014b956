// Package steps replays scripted pre-scan UI actions, such as logging in,
// against a browsing session.
package steps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// actionFunc performs one step against the session.
type actionFunc func(ctx context.Context, r *Runner, session schemas.BrowsingSession, idx int, step schemas.Step) error

// queryBuilder turns a step's location value into an element query.
type queryBuilder func(value string) schemas.Query

var actions = map[schemas.StepAction]actionFunc{
	schemas.ActionClick:       clickAction,
	schemas.ActionInputText:   inputTextAction,
	schemas.ActionSelectValue: selectValueAction,
	schemas.ActionNavigate:    navigateAction,
}

var selectors = map[schemas.SelectorStrategy]queryBuilder{
	schemas.SelectorXPath: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryXPath, Expr: v}
	},
	schemas.SelectorID: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryCSS, Expr: "#" + v}
	},
	schemas.SelectorName: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryCSS, Expr: fmt.Sprintf("[name=%q]", v)}
	},
	schemas.SelectorClassName: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryCSS, Expr: "." + v}
	},
	schemas.SelectorTagName: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryCSS, Expr: v}
	},
	schemas.SelectorCSSSelector: func(v string) schemas.Query {
		return schemas.Query{Kind: schemas.QueryCSS, Expr: v}
	},
}

// BuildQuery maps a selector strategy and value to a query.
func BuildQuery(strategy schemas.SelectorStrategy, value string) (schemas.Query, bool) {
	build, ok := selectors[strategy]
	if !ok {
		return schemas.Query{}, false
	}
	return build(value), true
}

// Runner replays steps in order. It is stateless and safe to share between runs;
// the session passed to Run is not.
type Runner struct {
	logger *zap.Logger
}

var _ schemas.StepRunner = (*Runner)(nil)

// NewRunner creates a step runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger.Named("steps")}
}

// Run executes every active step whose target URL equals the session's current URL.
// The first failing step aborts the run.
func (r *Runner) Run(ctx context.Context, session schemas.BrowsingSession, steps []schemas.Step) error {
	if len(steps) == 0 {
		return nil
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := session.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("step %d: failed to read current URL: %w", i, err)
		}
		log := r.logger.With(zap.Int("step", i), zap.String("action", string(step.Action)), zap.String("stepURL", step.URL))
		if current != step.URL {
			log.Debug("Skipping step, URL does not match", zap.String("currentURL", current))
			continue
		}
		if !step.IsActive {
			log.Debug("Skipping inactive step")
			continue
		}

		if err := r.perform(ctx, session, i, step); err != nil {
			log.Error("Step failed", zap.Error(err))
			return err
		}
		log.Info("Step executed", zap.String("findValue", step.FindValue))
	}

	r.logger.Debug("All steps executed")
	return nil
}

// perform runs one step with the session default timeout set to the step's
// wait time, restoring the previous default on every path. A step without a
// wait time keeps the session default.
func (r *Runner) perform(ctx context.Context, session schemas.BrowsingSession, idx int, step schemas.Step) error {
	action, ok := actions[step.Action]
	if !ok {
		return &StepResolutionError{Index: idx, Step: step, Reason: fmt.Sprintf("unsupported step action %q", step.Action)}
	}

	if wait := step.Wait(); wait > 0 {
		previous := session.DefaultTimeout()
		session.SetDefaultTimeout(wait)
		defer session.SetDefaultTimeout(previous)
	}

	return action(ctx, r, session, idx, step)
}

// resolve finds the step's target element through the selector table.
func (r *Runner) resolve(ctx context.Context, session schemas.BrowsingSession, idx int, step schemas.Step) (schemas.ElementHandle, error) {
	q, ok := BuildQuery(step.FindBy, step.FindValue)
	if !ok {
		return nil, &StepResolutionError{Index: idx, Step: step, Reason: fmt.Sprintf("unsupported selector type %q", step.FindBy)}
	}
	el, err := session.Resolve(ctx, q, 0)
	if err != nil {
		if errors.Is(err, schemas.ErrElementTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &StepTimeoutError{Index: idx, Step: step, Query: q, Err: err}
		}
		return nil, &StepResolutionError{Index: idx, Step: step, Reason: "error with selector " + q.String(), Err: err}
	}
	return el, nil
}

func clickAction(ctx context.Context, r *Runner, session schemas.BrowsingSession, idx int, step schemas.Step) error {
	el, err := r.resolve(ctx, session, idx, step)
	if err != nil {
		return err
	}
	if err := session.Click(ctx, el); err != nil {
		return fmt.Errorf("step %d: click on %s failed: %w", idx, step.FindValue, err)
	}
	if err := session.WaitForNavigation(ctx, schemas.WaitNetworkAlmostIdle); err != nil {
		return fmt.Errorf("step %d: navigation after click did not settle: %w", idx, err)
	}
	return nil
}

func inputTextAction(ctx context.Context, r *Runner, session schemas.BrowsingSession, idx int, step schemas.Step) error {
	el, err := r.resolve(ctx, session, idx, step)
	if err != nil {
		return err
	}
	if err := session.Type(ctx, el, step.Input.String()); err != nil {
		return fmt.Errorf("step %d: typing into %s failed: %w", idx, step.FindValue, err)
	}
	return nil
}

func selectValueAction(ctx context.Context, r *Runner, session schemas.BrowsingSession, idx int, step schemas.Step) error {
	el, err := r.resolve(ctx, session, idx, step)
	if err != nil {
		return err
	}
	if err := session.Select(ctx, el, step.Input.String()); err != nil {
		return fmt.Errorf("step %d: selecting %q in %s failed: %w", idx, step.Input, step.FindValue, err)
	}
	return nil
}

func navigateAction(ctx context.Context, _ *Runner, session schemas.BrowsingSession, idx int, step schemas.Step) error {
	if err := session.Navigate(ctx, step.FindValue, schemas.WaitNetworkAlmostIdle); err != nil {
		return fmt.Errorf("step %d: navigation to %s failed: %w", idx, step.FindValue, err)
	}
	return nil
}
