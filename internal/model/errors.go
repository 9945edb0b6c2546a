package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the routing pipeline. ErrMiss and ErrIncompatibleVerb
// are control-flow signals: they advance the routing chain to the next stage
// and never surface to the user on their own.
var (
	// ErrMiss means the deterministic layer declined the turn (unknown verb,
	// low score, or ambiguous match). Not a failure.
	ErrMiss = errors.New("no confident deterministic match")

	// ErrIncompatibleVerb means the matched entity's domain does not support
	// the requested verb. Treated upstream as a miss.
	ErrIncompatibleVerb = errors.New("verb not supported for entity domain")

	// ErrCatalogUnavailable means a catalog rebuild failed and no snapshot
	// has ever been published. Callers holding a previous snapshot keep it.
	ErrCatalogUnavailable = errors.New("entity catalog unavailable")

	// ErrAgentUnavailable means an agent stage could not produce a usable
	// answer (transport failure, timeout, or empty response).
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrNoFallback means every stage in the chain failed.
	ErrNoFallback = errors.New("all routing stages failed")
)

// ExecutionError wraps a failure from the service caller after a confident
// match. The router records the attempted call on the decision and advances
// to the agent stages; only the dispatcher issues calls, so the at-most-one
// side effect guarantee holds even when the chain continues.
type ExecutionError struct {
	Call ServiceCall
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s.%s on %s: %v", e.Call.Domain, e.Call.Service, e.Call.EntityID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
