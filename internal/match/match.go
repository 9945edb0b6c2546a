// Package match scores catalog entities against an intent's target phrase.
// Matching is purely lexical: no embeddings, no network calls, and identical
// inputs always produce the identical ranking.
package match

import (
	"sort"

	"github.com/hanashi-ai/hanashi/internal/intent"
	"github.com/hanashi-ai/hanashi/internal/model"
)

// verbDomains lists the domains each verb can plausibly act on. Used only as
// a ranking tie-break: a compatible entity outranks an incompatible one at
// equal score, so "turn on the light" prefers light.x over sensor.x.
var verbDomains = map[model.Verb]map[string]bool{
	model.VerbTurnOn:   onOffDomains,
	model.VerbTurnOff:  onOffDomains,
	model.VerbToggle:   onOffDomains,
	model.VerbSetLevel: {"light": true, "fan": true, "climate": true},
}

var onOffDomains = map[string]bool{
	"light": true, "switch": true, "fan": true,
	"media_player": true, "climate": true, "cover": true,
	"script": true, "scene": true, "input_boolean": true, "lock": true,
}

// Match scores every entity against the intent's target and returns results
// in descending rank order. Each entity's score is the maximum over its
// candidate strings (name, aliases, object id, area variants).
//
// Ordering at equal score: verb-compatible domain first, then entity ID
// ascending. The order is total, so repeated calls rank identically.
func Match(it model.Intent, entities []model.Entity) []model.MatchResult {
	results := make([]model.MatchResult, 0, len(entities))
	for _, e := range entities {
		best := model.MatchResult{Entity: e}
		for _, cand := range e.CandidateStrings() {
			if s := Score(it.Target, intent.Normalize(cand)); s > best.Score {
				best.Score = s
				best.Candidate = cand
			}
		}
		results = append(results, best)
	}

	compatible := verbDomains[it.Verb]
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ci := compatible[results[i].Entity.Domain]
		cj := compatible[results[j].Entity.Domain]
		if ci != cj {
			return ci
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
	return results
}

// Compatible reports whether the verb can act on the entity's domain.
func Compatible(verb model.Verb, domain string) bool {
	return verbDomains[verb][domain]
}
