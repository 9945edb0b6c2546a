package hanashi

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies which layer of the routing chain produced a decision.
type Stage string

const (
	StageDeterministic Stage = "deterministic"
	StagePrimary       Stage = "primary"
	StageFallback      Stage = "fallback"
)

// Outcome is the result of a routing stage.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeMiss    Outcome = "miss"
	OutcomeError   Outcome = "error"
)

// Entity is the public representation of one controllable device.
// It is a curated view of internal/model.Entity for use in extension
// interfaces. No internal package imports, so it is safe to use from outside
// the module.
type Entity struct {
	ID      string
	Domain  string
	Name    string
	Aliases []string
	Area    string
}

// ServiceCall is one resolved device action.
type ServiceCall struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]any
}

// Turn is one inbound utterance to route.
// A zero ConversationID gets a fresh UUID during routing.
type Turn struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Text           string
	Language       string
}

// Attempt records one stage's try at a turn, in chain order.
type Attempt struct {
	Stage   Stage
	Outcome Outcome
	Detail  string
}

// RoutingDecision is the terminal result of routing one turn.
// Executed is non-nil only when the deterministic layer issued a service call.
type RoutingDecision struct {
	TurnID         uuid.UUID
	ConversationID uuid.UUID
	Text           string
	Stage          Stage
	Outcome        Outcome
	Response       string
	Executed       *ServiceCall
	Score          float64
	Attempts       []Attempt
	Duration       time.Duration
	DecidedAt      time.Time
}
