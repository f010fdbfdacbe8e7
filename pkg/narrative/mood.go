package narrative

// Mood influences which actions characters take.
type Mood string

const (
	MoodMysterious    Mood = "mysterious"
	MoodAdventurous   Mood = "adventurous"
	MoodDark          Mood = "dark"
	MoodWhimsical     Mood = "whimsical"
	MoodRomantic      Mood = "romantic"
	MoodSuspenseful   Mood = "suspenseful"
	MoodPhilosophical Mood = "philosophical"
)

// Moods lists every mood in declaration order. Random draws index into this slice,
// so its order is part of seed reproducibility.
var Moods = []Mood{
	MoodMysterious,
	MoodAdventurous,
	MoodDark,
	MoodWhimsical,
	MoodRomantic,
	MoodSuspenseful,
	MoodPhilosophical,
}

// ParseMood returns the mood named by s. Matching is exact, like the wire values.
func ParseMood(s string) (Mood, bool) {
	for _, m := range Moods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

func (m Mood) String() string {
	return string(m)
}

// Genre selects the opening templates of a story.
type Genre string

const (
	GenreFantasy   Genre = "fantasy"
	GenreSciFi     Genre = "scifi"
	GenreHorror    Genre = "horror"
	GenreRomance   Genre = "romance"
	GenreAdventure Genre = "adventure"
	GenreMystery   Genre = "mystery"
)

// Genres lists every genre in declaration order.
var Genres = []Genre{
	GenreFantasy,
	GenreSciFi,
	GenreHorror,
	GenreRomance,
	GenreAdventure,
	GenreMystery,
}

// ParseGenre returns the genre named by s.
func ParseGenre(s string) (Genre, bool) {
	for _, g := range Genres {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

func (g Genre) String() string {
	return string(g)
}

// TensionTier buckets the continuous tension level for phrase selection.
type TensionTier string

const (
	TensionLow    TensionTier = "low"
	TensionMedium TensionTier = "medium"
	TensionHigh   TensionTier = "high"
)

// TierFor maps a tension level to its tier: [0, 0.33) low, [0.33, 0.66) medium, rest high.
func TierFor(level float64) TensionTier {
	switch {
	case level < 0.33:
		return TensionLow
	case level < 0.66:
		return TensionMedium
	default:
		return TensionHigh
	}
}
