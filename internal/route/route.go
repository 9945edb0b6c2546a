// Package route orchestrates the per-turn routing chain:
// deterministic pipeline, then the primary agent, then the fallback agent.
//
// The chain is an explicit state machine. Each stage is attempted at most
// once and produces one of {success, miss, error}; the first success ends
// the turn, and a fallback failure ends it with an error response. Exactly
// one RoutingDecision comes out of every turn.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hanashi-ai/hanashi/internal/agents"
	"github.com/hanashi-ai/hanashi/internal/catalog"
	"github.com/hanashi-ai/hanashi/internal/dispatch"
	"github.com/hanashi-ai/hanashi/internal/intent"
	"github.com/hanashi-ai/hanashi/internal/match"
	"github.com/hanashi-ai/hanashi/internal/model"
)

var tracer = otel.Tracer("hanashi/route")

// state is the router's position in the chain.
type state int

const (
	stateStart state = iota
	stateDeterministic
	statePrimary
	stateFallback
	stateDone
)

// Hook observes finalized routing decisions. Hooks run after the decision is
// made and must not influence it; failures are logged and dropped.
type Hook interface {
	OnDecision(ctx context.Context, decision model.RoutingDecision)
}

// Router routes turns through the chain.
type Router struct {
	catalog    *catalog.Catalog
	extractor  *intent.Extractor
	dispatcher *dispatch.Dispatcher
	primary    agents.Agent
	fallback   agents.Agent
	debug      model.DebugLevel
	logger     *slog.Logger
	hooks      []Hook
}

// Config wires a Router. Primary and Fallback may be agents.Noop but not nil.
type Config struct {
	Catalog    *catalog.Catalog
	Extractor  *intent.Extractor
	Dispatcher *dispatch.Dispatcher
	Primary    agents.Agent
	Fallback   agents.Agent
	Debug      model.DebugLevel
	Logger     *slog.Logger
	Hooks      []Hook
}

// New creates a Router.
func New(cfg Config) *Router {
	return &Router{
		catalog:    cfg.Catalog,
		extractor:  cfg.Extractor,
		dispatcher: cfg.Dispatcher,
		primary:    cfg.Primary,
		fallback:   cfg.Fallback,
		debug:      cfg.Debug,
		logger:     cfg.Logger,
		hooks:      cfg.Hooks,
	}
}

// WithDebug returns a copy of the router that renders traces at the given
// debug level. The copy shares every other dependency with the original.
func (r *Router) WithDebug(level model.DebugLevel) *Router {
	clone := *r
	clone.debug = level
	return &clone
}

// Route processes one turn to a terminal decision. The returned decision is
// always usable; the error is non-nil only when every stage failed, and the
// decision then carries the apology response.
func (r *Router) Route(ctx context.Context, turn model.Turn) (model.RoutingDecision, error) {
	ctx, span := tracer.Start(ctx, "route.turn")
	defer span.End()

	start := time.Now()
	trace := &Trace{}

	decision := model.RoutingDecision{
		TurnID:         turn.ID,
		ConversationID: turn.ConversationID,
		Text:           turn.Text,
	}

	var routeErr error
	st := stateStart
	for st != stateDone {
		switch st {
		case stateStart:
			st = stateDeterministic

		case stateDeterministic:
			res, err := r.tryDeterministic(ctx, turn, trace)
			if err == nil {
				decision.Stage = model.StageDeterministic
				decision.Outcome = model.OutcomeSuccess
				decision.Response = res.Response
				decision.Executed = &res.Call
				decision.Score = res.Score
				st = stateDone
			} else {
				// Misses and errors both advance: the user still gets an
				// answer. An execution error stays visible in the trace,
				// and if the call was attempted it is recorded on the
				// decision so at-most-one side effect remains auditable.
				if execErr := asExecutionError(err); execErr != nil {
					decision.Executed = &execErr.Call
				}
				st = statePrimary
			}

		case statePrimary:
			answer, err := r.tryAgent(ctx, model.StagePrimary, r.primary, turn, trace)
			if err == nil {
				decision.Stage = model.StagePrimary
				decision.Outcome = model.OutcomeSuccess
				decision.Response = answer
				st = stateDone
			} else {
				st = stateFallback
			}

		case stateFallback:
			answer, err := r.tryAgent(ctx, model.StageFallback, r.fallback, turn, trace)
			if err == nil {
				decision.Stage = model.StageFallback
				decision.Outcome = model.OutcomeSuccess
				decision.Response = answer
			} else {
				decision.Stage = model.StageFallback
				decision.Outcome = model.OutcomeError
				decision.Response = r.apology(err)
				routeErr = fmt.Errorf("%w: %v", model.ErrNoFallback, err)
			}
			st = stateDone
		}
	}

	decision.Attempts = trace.Attempts()
	decision.Duration = time.Since(start)
	decision.DecidedAt = time.Now().UTC()
	decision.Response += trace.Render(r.debug)

	span.SetAttributes(
		attribute.String("hanashi.stage", string(decision.Stage)),
		attribute.String("hanashi.outcome", string(decision.Outcome)),
	)
	r.logger.Info("turn routed",
		"turn_id", turn.ID,
		"stage", decision.Stage,
		"outcome", decision.Outcome,
		"duration_ms", decision.Duration.Milliseconds(),
	)

	r.fireHooks(decision)
	return decision, routeErr
}

// tryDeterministic runs extract → match → gate → dispatch for one turn.
func (r *Router) tryDeterministic(ctx context.Context, turn model.Turn, trace *Trace) (dispatch.Result, error) {
	ctx, span := tracer.Start(ctx, "route.deterministic")
	defer span.End()

	snap, err := r.catalog.Ensure(ctx)
	if err != nil {
		trace.Record(model.StageDeterministic, model.OutcomeError, "catalog unavailable")
		return dispatch.Result{}, err
	}

	it := r.extractor.Extract(turn.Text)
	results := match.Match(it, snap.Entities)

	res, err := r.dispatcher.Dispatch(ctx, it, results)
	if err != nil {
		outcome := model.OutcomeError
		if errors.Is(err, model.ErrMiss) {
			outcome = model.OutcomeMiss
		}
		trace.Record(model.StageDeterministic, outcome, err.Error())
		return dispatch.Result{}, err
	}

	trace.Record(model.StageDeterministic, model.OutcomeSuccess,
		fmt.Sprintf("%s score %.2f", res.Entity.ID, res.Score))
	return res, nil
}

// tryAgent calls one agent stage and validates its answer.
func (r *Router) tryAgent(ctx context.Context, stage model.Stage, agent agents.Agent, turn model.Turn, trace *Trace) (string, error) {
	ctx, span := tracer.Start(ctx, "route.agent."+string(stage))
	defer span.End()

	answer, err := agent.Process(ctx, turn)
	if err != nil {
		r.logger.Warn("agent stage failed", "stage", stage, "agent", agent.Name(), "error", err)
		trace.Record(stage, model.OutcomeError, err.Error())
		return "", err
	}

	trace.Record(stage, model.OutcomeSuccess, agent.Name())
	return answer, nil
}

// apology is the terminal failure response. The cause is included only at
// verbose debug level; the trace render carries the stage detail otherwise.
func (r *Router) apology(cause error) string {
	if r.debug == model.DebugVerbose {
		return fmt.Sprintf("Sorry, I couldn't handle that: %v.", cause)
	}
	return "Sorry, I couldn't handle that."
}

func (r *Router) fireHooks(decision model.RoutingDecision) {
	for _, h := range r.hooks {
		h := h
		go func() {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			h.OnDecision(hookCtx, decision)
		}()
	}
}

func asExecutionError(err error) *model.ExecutionError {
	var execErr *model.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return nil
}
