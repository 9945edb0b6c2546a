package route

import (
	"fmt"
	"strings"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// Trace accumulates the ordered stage attempts for one turn. It is pure
// bookkeeping: recording never fails and rendering has no side effects.
type Trace struct {
	attempts []model.Attempt
}

// Record appends one stage attempt.
func (t *Trace) Record(stage model.Stage, outcome model.Outcome, detail string) {
	t.attempts = append(t.attempts, model.Attempt{Stage: stage, Outcome: outcome, Detail: detail})
}

// Attempts returns the recorded attempts in order.
func (t *Trace) Attempts() []model.Attempt {
	return t.attempts
}

// Render formats the trace for appending to a spoken or displayed response.
// DebugNone renders nothing; DebugLow names the answering stage; DebugVerbose
// lists every attempt with its outcome and detail.
func (t *Trace) Render(level model.DebugLevel) string {
	if level == model.DebugNone || len(t.attempts) == 0 {
		return ""
	}

	if level == model.DebugLow {
		last := t.attempts[len(t.attempts)-1]
		return fmt.Sprintf(" [%s: %s]", last.Stage, last.Outcome)
	}

	var sb strings.Builder
	sb.WriteString(" [")
	for i, a := range t.attempts {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(string(a.Stage))
		sb.WriteString(": ")
		sb.WriteString(string(a.Outcome))
		if a.Detail != "" {
			sb.WriteString(" (")
			sb.WriteString(a.Detail)
			sb.WriteString(")")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
