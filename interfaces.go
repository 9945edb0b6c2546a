package hanashi

import "context"

// EntitySource lists the controllable entities the deterministic matcher can
// target. When provided via WithEntitySource, replaces the Home Assistant
// REST client configured from the environment.
type EntitySource interface {
	ListEntities(ctx context.Context) ([]Entity, error)
}

// ServiceCaller executes a resolved device action.
// When provided via WithServiceCaller, replaces the Home Assistant REST client.
// At most one call is issued per turn.
type ServiceCaller interface {
	CallService(ctx context.Context, call ServiceCall) error
}

// Agent answers a turn conversationally. The deterministic layer consults
// agents only after it declines a turn; Process returns the spoken answer or
// an error when the agent cannot produce a usable one.
type Agent interface {
	Name() string
	Process(ctx context.Context, turn Turn) (string, error)
}

// TurnHook receives every finalized routing decision.
// Multiple hooks may be registered via multiple WithTurnHook calls.
// Hook methods run in goroutines and must not block indefinitely; failures
// are logged but never affect the decision.
type TurnHook interface {
	OnTurnRouted(ctx context.Context, decision RoutingDecision) error
}
