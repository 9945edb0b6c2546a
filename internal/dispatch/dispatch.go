// Package dispatch applies the confidence gate to a ranked match list and,
// when exactly one winner survives, executes the resolved service call.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanashi-ai/hanashi/internal/model"
	"github.com/hanashi-ai/hanashi/internal/resolve"
)

// Caller executes a resolved service call against the host system.
type Caller interface {
	CallService(ctx context.Context, call model.ServiceCall) error
}

// Result is a successful deterministic dispatch.
type Result struct {
	Call     model.ServiceCall
	Entity   model.Entity
	Score    float64
	Response string
}

// Dispatcher gates matches and executes at most one service call per turn.
type Dispatcher struct {
	caller    Caller
	threshold float64
	tieMargin float64
	logger    *slog.Logger
}

// New creates a Dispatcher. threshold is the minimum accepted score (a score
// exactly at the threshold is accepted); tieMargin is the minimum lead the
// best match needs over the runner-up.
func New(caller Caller, threshold, tieMargin float64, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{caller: caller, threshold: threshold, tieMargin: tieMargin, logger: logger}
}

// Dispatch gates the ranked results and executes the winning call.
//
// Declines return an error wrapping model.ErrMiss with the reason; the caller
// forwards the turn to the next routing stage and no side effect happens.
// Execution failures return *model.ExecutionError carrying the attempted
// call; no stage retries the call, only the dispatcher issues them.
func (d *Dispatcher) Dispatch(ctx context.Context, it model.Intent, results []model.MatchResult) (Result, error) {
	if it.Verb == model.VerbUnknown {
		return Result{}, fmt.Errorf("%w: no actionable verb", model.ErrMiss)
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("%w: catalog is empty", model.ErrMiss)
	}

	best := results[0]
	if best.Score < d.threshold {
		return Result{}, fmt.Errorf("%w: best score %.2f for %s below threshold %.2f",
			model.ErrMiss, best.Score, best.Entity.ID, d.threshold)
	}
	if len(results) > 1 {
		second := results[1]
		if best.Score-second.Score < d.tieMargin {
			return Result{}, fmt.Errorf("%w: ambiguous between %s (%.2f) and %s (%.2f)",
				model.ErrMiss, best.Entity.ID, best.Score, second.Entity.ID, second.Score)
		}
	}

	call, err := resolve.Resolve(it.Verb, best.Entity, it.Level)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", model.ErrMiss, err)
	}

	// Cancellation before the side effect means no side effect.
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("dispatch cancelled before execution: %w", err)
	}

	if err := d.caller.CallService(ctx, call); err != nil {
		d.logger.Error("service call failed",
			"entity_id", call.EntityID, "service", call.Domain+"."+call.Service, "error", err)
		return Result{}, &model.ExecutionError{Call: call, Err: err}
	}

	d.logger.Info("service call executed",
		"entity_id", call.EntityID, "service", call.Domain+"."+call.Service, "score", best.Score)

	return Result{
		Call:     call,
		Entity:   best.Entity,
		Score:    best.Score,
		Response: confirmation(it, best.Entity),
	}, nil
}

// confirmation synthesizes the spoken acknowledgement for an executed call.
func confirmation(it model.Intent, entity model.Entity) string {
	name := entity.Name
	if name == "" {
		name = entity.ID
	}
	switch it.Verb {
	case model.VerbTurnOn:
		return fmt.Sprintf("Turned on %s.", name)
	case model.VerbTurnOff:
		return fmt.Sprintf("Turned off %s.", name)
	case model.VerbToggle:
		return fmt.Sprintf("Toggled %s.", name)
	case model.VerbSetLevel:
		if entity.Domain == "climate" {
			return fmt.Sprintf("Set %s to %d degrees.", name, it.Level)
		}
		return fmt.Sprintf("Set %s to %d percent.", name, it.Level)
	default:
		return fmt.Sprintf("Done with %s.", name)
	}
}
