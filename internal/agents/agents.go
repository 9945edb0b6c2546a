// Package agents holds the conversation agent implementations the router
// falls back to when the deterministic layer declines a turn.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// Agent answers a turn in natural language. A usable answer is any non-empty
// string that passes the junk filter; anything else counts as a stage failure
// and advances the routing chain.
type Agent interface {
	Name() string
	Process(ctx context.Context, turn model.Turn) (string, error)
}

// junkResponses are answers some conversation backends return instead of a
// proper error. They mean "I could not handle that" and must advance the
// chain rather than reach the user from a non-terminal stage.
var junkResponses = []string{
	"sorry, i couldn't understand that",
	"sorry, i didn't understand that",
	"an unexpected error occurred",
	"unable to process your request",
	"i am not able to answer that",
}

// CheckUsable validates an agent's answer. Empty answers and known junk
// responses fail with model.ErrAgentUnavailable.
func CheckUsable(response string) error {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return fmt.Errorf("%w: empty response", model.ErrAgentUnavailable)
	}
	lowered := strings.ToLower(strings.TrimRight(trimmed, ".!"))
	for _, junk := range junkResponses {
		if lowered == junk {
			return fmt.Errorf("%w: junk response %q", model.ErrAgentUnavailable, trimmed)
		}
	}
	return nil
}

// Noop is an agent that always declines. Useful as an explicit "no fallback
// configured" slot and in tests.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Process(context.Context, model.Turn) (string, error) {
	return "", fmt.Errorf("%w: noop agent", model.ErrAgentUnavailable)
}
