// Package intent turns a raw utterance into a structured Intent: a canonical
// verb, an optional level, and the remaining target phrase. Extraction is pure
// and deterministic: the same input always yields the same Intent.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// ConfusionPair rewrites a commonly mis-transcribed phrase to its likely
// intended form. Applied on word boundaries, in order, and only to text that
// looks like a device command; free-form questions pass through untouched so
// an agent sees what the user actually said.
type ConfusionPair struct {
	From string
	To   string
}

// DefaultConfusionPairs covers the substitutions speech-to-text engines make
// most often for home device names.
var DefaultConfusionPairs = []ConfusionPair{
	{From: "grape room", To: "great room"},
	{From: "line", To: "light"},
	{From: "life", To: "light"},
}

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
	commandLike = regexp.MustCompile(`^(turn|switch|toggle|set|dim|increase|decrease)\b`)
	onOffVerb   = regexp.MustCompile(`^(turn on|turn off|switch on|switch off|toggle)\s+(.+)$`)
	setVerb     = regexp.MustCompile(`^(?:set|dim)\s+(.+?)\s+to\s+([0-9]{1,3})(?:\s+(?:percent|degrees))?$`)
)

// Extractor parses utterances with a configurable confusion table.
// The zero value is not usable; construct with New.
type Extractor struct {
	pairs []ConfusionPair
}

// New creates an Extractor. A nil pairs slice uses DefaultConfusionPairs.
func New(pairs []ConfusionPair) *Extractor {
	if pairs == nil {
		pairs = DefaultConfusionPairs
	}
	return &Extractor{pairs: pairs}
}

// Extract normalizes raw text and parses the leading verb phrase.
// An utterance with no recognizable verb yields VerbUnknown with the full
// normalized text as the target, so downstream stages still see the phrase.
func (e *Extractor) Extract(raw string) model.Intent {
	normalized := Normalize(raw)
	corrected := normalized
	if commandLike.MatchString(normalized) {
		corrected = e.applyConfusion(normalized)
	}

	it := model.Intent{
		Raw:        raw,
		Normalized: corrected,
		Verb:       model.VerbUnknown,
		Target:     corrected,
	}

	if m := onOffVerb.FindStringSubmatch(corrected); m != nil {
		it.Verb = verbFor(m[1])
		it.Target = stripFiller(m[2])
		return it
	}
	if m := setVerb.FindStringSubmatch(corrected); m != nil {
		level, err := strconv.Atoi(m[2])
		if err == nil {
			it.Verb = model.VerbSetLevel
			it.Target = stripFiller(m[1])
			it.Level = level
			return it
		}
	}
	return it
}

// Normalize lowercases, strips punctuation, and collapses whitespace.
// Apostrophes are removed rather than spaced so contractions stay one token.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "'", "")
	s = nonAlnum.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// applyConfusion rewrites each confusion pair on word boundaries.
// Multi-word pairs are applied before re-tokenizing so "grape room" can be
// replaced as a unit.
func (e *Extractor) applyConfusion(s string) string {
	for _, p := range e.pairs {
		if strings.Contains(p.From, " ") {
			s = strings.ReplaceAll(s, p.From, p.To)
			continue
		}
		words := strings.Split(s, " ")
		for i, w := range words {
			if w == p.From {
				words[i] = p.To
			}
		}
		s = strings.Join(words, " ")
	}
	return s
}

// stripFiller drops leading articles from a target phrase.
func stripFiller(s string) string {
	for _, prefix := range []string{"the ", "my ", "a "} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(s, prefix))
		}
	}
	return strings.TrimSpace(s)
}

func verbFor(phrase string) model.Verb {
	switch phrase {
	case "turn on", "switch on":
		return model.VerbTurnOn
	case "turn off", "switch off":
		return model.VerbTurnOff
	case "toggle":
		return model.VerbToggle
	default:
		return model.VerbUnknown
	}
}
