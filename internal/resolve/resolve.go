// Package resolve maps a (verb, entity) pair to the concrete service call
// that carries it out. The mapping is a fixed table; unsupported pairs fail
// with model.ErrIncompatibleVerb so the caller can treat them as a miss.
package resolve

import (
	"fmt"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// onOffDomains are the domains whose own turn_on/turn_off services are used
// directly. Everything else needs an explicit entry below.
var onOffDomains = map[string]bool{
	"light": true, "switch": true, "fan": true, "media_player": true,
	"climate": true, "script": true, "input_boolean": true,
}

// Resolve builds the service call for verb against entity. level is only
// consulted for VerbSetLevel.
func Resolve(verb model.Verb, entity model.Entity, level int) (model.ServiceCall, error) {
	switch verb {
	case model.VerbTurnOn, model.VerbTurnOff:
		return resolveOnOff(verb, entity)
	case model.VerbToggle:
		// homeassistant.toggle dispatches per-domain server-side, which
		// covers covers and climate without per-domain branches here.
		return model.ServiceCall{
			Domain:   "homeassistant",
			Service:  "toggle",
			EntityID: entity.ID,
		}, nil
	case model.VerbSetLevel:
		return resolveSetLevel(entity, level)
	default:
		return model.ServiceCall{}, fmt.Errorf("resolve %s for %s: %w", verb, entity.ID, model.ErrIncompatibleVerb)
	}
}

func resolveOnOff(verb model.Verb, entity model.Entity) (model.ServiceCall, error) {
	service := "turn_on"
	if verb == model.VerbTurnOff {
		service = "turn_off"
	}

	switch {
	case onOffDomains[entity.Domain]:
		return model.ServiceCall{Domain: entity.Domain, Service: service, EntityID: entity.ID}, nil
	case entity.Domain == "cover":
		if verb == model.VerbTurnOn {
			return model.ServiceCall{Domain: "cover", Service: "open_cover", EntityID: entity.ID}, nil
		}
		return model.ServiceCall{Domain: "cover", Service: "close_cover", EntityID: entity.ID}, nil
	case entity.Domain == "lock":
		// "turn on the lock" engages it, matching how the host system maps
		// on/off onto locks.
		if verb == model.VerbTurnOn {
			return model.ServiceCall{Domain: "lock", Service: "lock", EntityID: entity.ID}, nil
		}
		return model.ServiceCall{Domain: "lock", Service: "unlock", EntityID: entity.ID}, nil
	case entity.Domain == "scene":
		// Scenes only activate; there is nothing to turn off.
		if verb == model.VerbTurnOn {
			return model.ServiceCall{Domain: "scene", Service: "turn_on", EntityID: entity.ID}, nil
		}
		return model.ServiceCall{}, fmt.Errorf("resolve %s for %s: %w", verb, entity.ID, model.ErrIncompatibleVerb)
	default:
		return model.ServiceCall{}, fmt.Errorf("resolve %s for %s: %w", verb, entity.ID, model.ErrIncompatibleVerb)
	}
}

func resolveSetLevel(entity model.Entity, level int) (model.ServiceCall, error) {
	switch entity.Domain {
	case "light":
		if level < 0 || level > 100 {
			return model.ServiceCall{}, fmt.Errorf("resolve set_level for %s: brightness %d out of range: %w", entity.ID, level, model.ErrIncompatibleVerb)
		}
		return model.ServiceCall{
			Domain:   "light",
			Service:  "turn_on",
			EntityID: entity.ID,
			Data:     map[string]any{"brightness_pct": level},
		}, nil
	case "fan":
		if level < 0 || level > 100 {
			return model.ServiceCall{}, fmt.Errorf("resolve set_level for %s: percentage %d out of range: %w", entity.ID, level, model.ErrIncompatibleVerb)
		}
		return model.ServiceCall{
			Domain:   "fan",
			Service:  "set_percentage",
			EntityID: entity.ID,
			Data:     map[string]any{"percentage": level},
		}, nil
	case "climate":
		return model.ServiceCall{
			Domain:   "climate",
			Service:  "set_temperature",
			EntityID: entity.ID,
			Data:     map[string]any{"temperature": level},
		}, nil
	default:
		return model.ServiceCall{}, fmt.Errorf("resolve set_level for %s: %w", entity.ID, model.ErrIncompatibleVerb)
	}
}
