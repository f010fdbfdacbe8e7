package narrative

import (
	"fmt"
	"math/rand/v2"
)

// Snapshot is the persistable state of an Engine: its context and the position of
// its random source. A restored engine continues the exact same random sequence.
type Snapshot struct {
	Context StoryContext `json:"context"`
	Source  []byte       `json:"source"`
}

// Snapshot captures the engine state.
func (e *Engine) Snapshot() (*Snapshot, error) {
	src, err := e.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal random source: %w", err)
	}
	return &Snapshot{
		Context: e.ctx.clone(),
		Source:  src,
	}, nil
}

// Restore rebuilds an engine from a snapshot.
func Restore(s *Snapshot) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if _, ok := ParseMood(string(s.Context.Mood)); !ok {
		return nil, fmt.Errorf("snapshot has unknown mood %q", s.Context.Mood)
	}
	if _, ok := ParseGenre(string(s.Context.Genre)); !ok {
		return nil, fmt.Errorf("snapshot has unknown genre %q", s.Context.Genre)
	}
	if s.Context.TensionLevel < 0 || s.Context.TensionLevel > 1 {
		return nil, fmt.Errorf("snapshot tension %v out of range", s.Context.TensionLevel)
	}

	src := new(rand.PCG)
	if err := src.UnmarshalBinary(s.Source); err != nil {
		return nil, fmt.Errorf("failed to unmarshal random source: %w", err)
	}

	ctx := s.Context.clone()
	return &Engine{
		src: src,
		rng: rand.New(src),
		ctx: &ctx,
	}, nil
}
