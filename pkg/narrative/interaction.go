package narrative

import (
	"slices"

	"golang.org/x/text/cases"
)

// InteractionType discriminates user interaction events.
type InteractionType string

const (
	InteractionScroll   InteractionType = "scroll"
	InteractionClick    InteractionType = "click"
	InteractionKeypress InteractionType = "keypress"
)

// Scrolls longer than scrollThreshold raise tension by scrollTension.
const (
	scrollThreshold = 100
	scrollTension   = 0.1
	clickChance     = 0.5
)

// Interaction is a user event that steers the next segment.
type Interaction struct {
	Type   InteractionType `json:"type"`
	Amount float64         `json:"amount,omitempty"` // scroll distance
	Key    string          `json:"key,omitempty"`    // pressed key
	Target string          `json:"target,omitempty"` // clicked element, informational only
}

// TypeName is the interaction type used for logging and counters.
func (i *Interaction) TypeName() string {
	if i == nil || i.Type == "" {
		return "unknown"
	}
	return string(i.Type)
}

// IsZero reports whether the interaction is nil or carries no fields.
func (i *Interaction) IsZero() bool {
	return i == nil || *i == Interaction{}
}

var keyMoods = map[string]Mood{
	"m": MoodMysterious,
	"a": MoodAdventurous,
	"d": MoodDark,
	"w": MoodWhimsical,
	"r": MoodRomantic,
	"s": MoodSuspenseful,
	"p": MoodPhilosophical,
}

// MoodForKey returns the mood bound to a key, ignoring case.
func MoodForKey(key string) (Mood, bool) {
	m, ok := keyMoods[cases.Fold().String(key)]
	return m, ok
}

func (e *Engine) applyInfluence(in *Interaction) {
	switch in.Type {
	case InteractionScroll:
		if in.Amount > scrollThreshold {
			e.ctx.addTension(scrollTension)
		}

	case InteractionClick:
		if e.chance(clickChance) {
			loc := pick(e.rng, locations)
			if !slices.Contains(e.ctx.Locations, loc) {
				e.ctx.Locations = append(e.ctx.Locations, loc)
			}
		}

	case InteractionKeypress:
		if m, ok := MoodForKey(in.Key); ok {
			e.ctx.Mood = m
		}
	}
}
