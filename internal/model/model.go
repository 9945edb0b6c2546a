// Package model defines the core domain types shared across the routing
// pipeline: entities, intents, match results, service calls, and the
// routing decision produced for every turn.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Verb is the canonical action extracted from an utterance.
type Verb string

const (
	VerbTurnOn   Verb = "turn_on"
	VerbTurnOff  Verb = "turn_off"
	VerbToggle   Verb = "toggle"
	VerbSetLevel Verb = "set_level"
	VerbUnknown  Verb = "unknown"
)

// Entity is one controllable device exposed to the pipeline.
// ID is "<domain>.<object_id>"; Domain is the prefix before the dot.
type Entity struct {
	ID      string   `json:"id"`
	Domain  string   `json:"domain"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Area    string   `json:"area,omitempty"`
}

// CandidateStrings returns every string the matcher should score against:
// the friendly name, each alias, the object id with underscores spaced out,
// and two area variants when an area is set. A name like "Kitchen Ceiling
// Light" in the Kitchen area also yields "Ceiling Light", so users who drop
// the area still hit it.
func (e Entity) CandidateStrings() []string {
	out := make([]string, 0, len(e.Aliases)+4)
	if e.Name != "" {
		out = append(out, e.Name)
	}
	out = append(out, e.Aliases...)
	if _, objectID, ok := strings.Cut(e.ID, "."); ok && objectID != "" {
		out = append(out, strings.ReplaceAll(objectID, "_", " "))
	}
	if e.Area != "" && e.Name != "" {
		out = append(out, e.Area+" "+e.Name)
		prefix := strings.ToLower(e.Area) + " "
		if strings.HasPrefix(strings.ToLower(e.Name), prefix) {
			out = append(out, e.Name[len(prefix):])
		}
	}
	return out
}

// Intent is the deterministic reading of one utterance.
// Target is the remainder after the verb phrase and filler words; it may be
// empty when the utterance carries no recognizable target. Level is only
// meaningful when Verb is VerbSetLevel.
type Intent struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Verb       Verb   `json:"verb"`
	Target     string `json:"target"`
	Level      int    `json:"level,omitempty"`
}

// MatchResult is one entity scored against an intent target.
type MatchResult struct {
	Entity    Entity  `json:"entity"`
	Score     float64 `json:"score"`
	Candidate string  `json:"candidate"` // the candidate string that produced the score
}

// ServiceCall is the resolved side effect for an intent.
type ServiceCall struct {
	Domain   string         `json:"domain"`
	Service  string         `json:"service"`
	EntityID string         `json:"entity_id"`
	Data     map[string]any `json:"data,omitempty"`
}

// Stage identifies which layer of the routing chain handled (or attempted)
// a turn.
type Stage string

const (
	StageDeterministic Stage = "deterministic"
	StagePrimary       Stage = "primary"
	StageFallback      Stage = "fallback"
)

// Outcome is the per-stage result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeMiss    Outcome = "miss"
	OutcomeError   Outcome = "error"
)

// DebugLevel controls how much routing detail is appended to responses.
type DebugLevel string

const (
	DebugNone    DebugLevel = "none"
	DebugLow     DebugLevel = "low"
	DebugVerbose DebugLevel = "verbose"
)

// ParseDebugLevel maps a string to a DebugLevel, defaulting to DebugNone.
func ParseDebugLevel(s string) DebugLevel {
	switch DebugLevel(s) {
	case DebugLow:
		return DebugLow
	case DebugVerbose:
		return DebugVerbose
	default:
		return DebugNone
	}
}

// Turn is one inbound utterance.
type Turn struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Text           string    `json:"text"`
	Language       string    `json:"language,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Attempt records one stage's try at a turn, in order.
type Attempt struct {
	Stage   Stage   `json:"stage"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// RoutingDecision is the terminal result of routing one turn.
// Exactly one is produced per turn. Executed is non-nil only when the
// deterministic layer dispatched a service call.
type RoutingDecision struct {
	TurnID         uuid.UUID     `json:"turn_id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	Text           string        `json:"text"`
	Stage          Stage         `json:"stage"`
	Outcome        Outcome       `json:"outcome"`
	Response       string        `json:"response"`
	Executed       *ServiceCall  `json:"executed,omitempty"`
	Score          float64       `json:"score,omitempty"`
	Attempts       []Attempt     `json:"attempts,omitempty"`
	Duration       time.Duration `json:"duration_ms"`
	DecidedAt      time.Time     `json:"decided_at"`
}
