package narrative

// Event tags appended to StoryContext.RecentEvents.
const (
	EventStoryOpening   = "story_opening"
	EventStorylineMerge = "storyline_merge"
)

// StoryContext is the mutable narrative state of one session.
type StoryContext struct {
	Mood         Mood     `json:"mood"`
	Genre        Genre    `json:"genre"`
	Characters   []string `json:"characters"`
	Locations    []string `json:"locations"`
	Themes       []string `json:"themes"` // reserved, never populated
	TensionLevel float64  `json:"tension_level"`
	StoryLength  int      `json:"story_length"`
	RecentEvents []string `json:"recent_events"`
}

// Summary is the public view of a StoryContext. Themes and recent events are left out.
type Summary struct {
	Mood         Mood     `json:"mood"`
	Genre        Genre    `json:"genre"`
	Characters   []string `json:"characters"`
	Locations    []string `json:"locations"`
	TensionLevel float64  `json:"tension_level"`
	StoryLength  int      `json:"story_length"`
}

// Summary returns the context with characters and locations deduplicated.
func (c *StoryContext) Summary() Summary {
	return Summary{
		Mood:         c.Mood,
		Genre:        c.Genre,
		Characters:   dedupe(c.Characters),
		Locations:    dedupe(c.Locations),
		TensionLevel: c.TensionLevel,
		StoryLength:  c.StoryLength,
	}
}

// clone returns a deep copy so callers cannot mutate engine state.
func (c *StoryContext) clone() StoryContext {
	out := *c
	out.Characters = append([]string(nil), c.Characters...)
	out.Locations = append([]string(nil), c.Locations...)
	out.Themes = append([]string(nil), c.Themes...)
	out.RecentEvents = append([]string(nil), c.RecentEvents...)
	return out
}

func (c *StoryContext) addTension(delta float64) {
	c.TensionLevel = clamp(c.TensionLevel+delta, 0, 1)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
