package narrative

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// Probabilities of the independent trials drawn by Advance and evolve, in draw order.
const (
	transitionChance   = 0.7
	tensionChance      = 0.5
	locationChance     = 0.4
	newCharacterChance = 0.3

	moodShiftChance  = 0.15
	genreShiftChance = 0.05

	tensionDeltaMin = -0.10
	tensionDeltaMax = 0.15

	initialTension = 0.3
	mergeEssence   = 10
	mergeMinWords  = 5
	mergeCloser    = "... And so the stories became one."
)

// Engine evolves a StoryContext and renders story text from the template tables.
// An Engine is not safe for concurrent use; callers serialize access per session.
type Engine struct {
	src *rand.PCG
	rng *rand.Rand
	ctx *StoryContext
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed makes the engine's random sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.src = rand.NewPCG(seed, seed)
	}
}

// New creates an engine with a freshly randomized context.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.src == nil {
		e.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	e.rng = rand.New(e.src)
	e.ctx = e.newContext()
	return e
}

func (e *Engine) newContext() *StoryContext {
	return &StoryContext{
		Mood:         pick(e.rng, Moods),
		Genre:        pick(e.rng, Genres),
		Characters:   []string{pick(e.rng, characters)},
		Locations:    []string{pick(e.rng, locations)},
		Themes:       []string{},
		TensionLevel: initialTension,
		StoryLength:  0,
		RecentEvents: []string{},
	}
}

// Context returns a copy of the current context.
func (e *Engine) Context() StoryContext {
	return e.ctx.clone()
}

// Summary returns the public summary of the current context.
func (e *Engine) Summary() Summary {
	return e.ctx.Summary()
}

// Reset replaces the context with a freshly randomized one.
func (e *Engine) Reset() {
	e.ctx = e.newContext()
}

// GenerateOpening renders the first sentence of a story. The picked character and
// location are always appended, even if the context already holds them.
func (e *Engine) GenerateOpening() string {
	opening := pick(e.rng, openings[e.ctx.Genre])
	character := pick(e.rng, characters)
	location := pick(e.rng, locations)

	e.ctx.Characters = append(e.ctx.Characters, character)
	e.ctx.Locations = append(e.ctx.Locations, location)

	segment := fmt.Sprintf("%s %s arrived at %s.", opening, character, location)
	e.ctx.StoryLength += wordCount(segment)
	e.ctx.RecentEvents = append(e.ctx.RecentEvents, EventStoryOpening)

	return segment
}

// Advance applies the interaction, if any, renders the next segment and evolves the context.
func (e *Engine) Advance(in *Interaction) string {
	if in != nil {
		e.applyInfluence(in)
	}

	parts := make([]string, 0, 4)

	if e.chance(transitionChance) {
		parts = append(parts, pick(e.rng, transitions))
	}

	if e.chance(tensionChance) {
		tier := TierFor(e.ctx.TensionLevel)
		parts = append(parts, pick(e.rng, tensionPhrases[tier]))
	}

	character := e.pickOr(e.ctx.Characters, characters)
	action := pick(e.rng, actions[e.ctx.Mood])

	if e.chance(locationChance) {
		location := e.pickOr(e.ctx.Locations, locations)
		parts = append(parts, fmt.Sprintf("%s %s in %s.", character, action, location))
	} else {
		parts = append(parts, fmt.Sprintf("%s %s.", character, action))
	}

	if e.chance(newCharacterChance) {
		newcomer := pick(e.rng, characters)
		if !slices.Contains(e.ctx.Characters, newcomer) {
			e.ctx.Characters = append(e.ctx.Characters, newcomer)
			parts = append(parts, fmt.Sprintf("It was then that %s appeared.", newcomer))
		}
	}

	segment := strings.Join(parts, " ")
	e.ctx.StoryLength += wordCount(segment)
	e.evolve()

	return segment
}

// evolve drifts mood, tension and genre after every Advance.
func (e *Engine) evolve() {
	if e.chance(moodShiftChance) {
		e.ctx.Mood = pick(e.rng, Moods)
	}

	delta := tensionDeltaMin + e.rng.Float64()*(tensionDeltaMax-tensionDeltaMin)
	e.ctx.addTension(delta)

	if e.chance(genreShiftChance) {
		e.ctx.Genre = pick(e.rng, Genres)
	}
}

// MergeStorylines weaves one of the other storyline's segments into this one.
// With no segments it behaves exactly like Advance(nil).
// Merged text does not count toward StoryLength.
func (e *Engine) MergeStorylines(otherSegments []string) string {
	if len(otherSegments) == 0 {
		return e.Advance(nil)
	}

	source := pick(e.rng, otherSegments)
	transition := pick(e.rng, mergeTransitions)

	essence := source
	if words := strings.Fields(source); len(words) > mergeMinWords {
		essence = strings.Join(words[:min(mergeEssence, len(words))], " ")
	}

	merged := fmt.Sprintf("%s %s%s", transition, essence, mergeCloser)
	e.ctx.RecentEvents = append(e.ctx.RecentEvents, EventStorylineMerge)

	return merged
}

// SetMood sets the mood by name. Unknown names leave the context untouched.
func (e *Engine) SetMood(name string) bool {
	m, ok := ParseMood(name)
	if !ok {
		return false
	}
	e.ctx.Mood = m
	return true
}

// SetGenre sets the genre by name. Unknown names leave the context untouched.
func (e *Engine) SetGenre(name string) bool {
	g, ok := ParseGenre(name)
	if !ok {
		return false
	}
	e.ctx.Genre = g
	return true
}

// chance draws one Bernoulli trial with success probability p.
func (e *Engine) chance(p float64) bool {
	return e.rng.Float64() < p
}

// pickOr picks from preferred, or from fallback when preferred is empty.
func (e *Engine) pickOr(preferred, fallback []string) string {
	if len(preferred) > 0 {
		return pick(e.rng, preferred)
	}
	return pick(e.rng, fallback)
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
