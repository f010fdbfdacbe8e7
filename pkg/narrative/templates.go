package narrative

import (
	"fmt"
	"strings"
)

// Template tables. These are read-only after package init and safe to share across engines.

var openings = map[Genre][]string{
	GenreFantasy: {
		"In a realm where magic flows like rivers,",
		"Beyond the mountains of the Eternal Dawn,",
		"The ancient prophecy spoke of this moment:",
		"In the kingdom of forgotten dreams,",
		"Where dragons once soared and wizards walked,",
	},
	GenreSciFi: {
		"The starship hummed with quiet energy as",
		"Across the void of space, a signal emerged:",
		"In the year 3047, humanity discovered",
		"The android's circuits flickered as",
		"On the colony ship Eternal Hope,",
	},
	GenreHorror: {
		"The shadows seemed to breathe as",
		"Something ancient stirred beneath the surface:",
		"The night grew darker than it should have,",
		"Fear crept in like cold fingers,",
		"What lurked in the darkness was",
	},
	GenreRomance: {
		"Their eyes met across the crowded room,",
		"Love, they say, arrives unexpectedly:",
		"The heart knows what the mind denies,",
		"In that moment, everything changed between them:",
		"Some connections transcend explanation,",
	},
	GenreAdventure: {
		"The journey ahead would test their limits,",
		"Adventure called from beyond the horizon,",
		"With courage in their heart, they stepped forward:",
		"The map revealed a path unknown,",
		"Every great story begins with a single step,",
	},
	GenreMystery: {
		"The clues didn't add up, but then",
		"Something was terribly wrong here,",
		"The detective noticed what others missed:",
		"Secrets have a way of revealing themselves,",
		"The truth was hidden in plain sight,",
	},
}

var characters = []string{
	"the wanderer", "an ancient guardian", "a lost child",
	"the mysterious stranger", "a forgotten hero", "the wise elder",
	"a curious inventor", "the silent observer", "a fierce warrior",
	"the healer", "a cunning thief", "the dreamer",
	"a brave captain", "the oracle", "a rebellious spirit",
}

var locations = []string{
	"the crystalline caves", "an abandoned city", "the floating islands",
	"the endless forest", "a hidden sanctuary", "the storm-torn sea",
	"the ancient library", "a forgotten temple", "the mirror dimension",
	"the twilight valley", "a mechanical heart", "the dream realm",
}

var actions = map[Mood][]string{
	MoodMysterious: {
		"discovered a hidden truth that changed everything",
		"encountered something that defied explanation",
		"followed whispers that led to ancient secrets",
		"uncovered a mystery spanning centuries",
		"realized nothing was as it seemed",
	},
	MoodAdventurous: {
		"embarked on a perilous journey",
		"faced dangers that would break lesser souls",
		"discovered uncharted territories",
		"conquered impossible challenges",
		"found strength they never knew existed",
	},
	MoodDark: {
		"confronted the darkness within",
		"witnessed horrors that haunted their dreams",
		"made a sacrifice that cost everything",
		"faced the abyss and it stared back",
		"lost something precious to the shadows",
	},
	MoodWhimsical: {
		"stumbled upon something wonderfully absurd",
		"found magic in the most unexpected place",
		"danced with creatures of pure imagination",
		"discovered that nonsense held the answers",
		"laughed in the face of impossibility",
	},
	MoodRomantic: {
		"felt their heart skip in unexpected ways",
		"discovered love blooming in darkness",
		"risked everything for a moment together",
		"found connection transcending all barriers",
		"realized love was worth any sacrifice",
	},
	MoodSuspenseful: {
		"felt time slowing as danger approached",
		"held their breath as fate hung in balance",
		"watched helplessly as events unfolded",
		"faced a choice that would change everything",
		"sensed something terrible was about to happen",
	},
	MoodPhilosophical: {
		"questioned the nature of their reality",
		"pondered the meaning of their existence",
		"discovered truth was more complex than imagined",
		"realized wisdom came from unexpected sources",
		"understood that some questions have no answers",
	},
}

var transitions = []string{
	"Meanwhile,", "As time passed,", "Without warning,",
	"In the silence that followed,", "Against all odds,",
	"When hope seemed lost,", "At the edge of reason,",
	"Through the mist of uncertainty,", "In that pivotal moment,",
	"As fate would have it,", "Beyond the veil of reality,",
}

var tensionPhrases = map[TensionTier][]string{
	TensionLow: {
		"A sense of calm settled over",
		"Peace, however brief, brought clarity to",
		"In the quiet moments,",
	},
	TensionMedium: {
		"Uncertainty hung in the air as",
		"The stakes grew higher when",
		"A turning point approached as",
	},
	TensionHigh: {
		"Heart pounding, they realized",
		"There was no turning back now as",
		"Everything converged in this moment:",
	},
}

var mergeTransitions = []string{
	"As realities collided,",
	"In a twist of fate,",
	"The timelines merged when",
	"Suddenly, another story intersected:",
	"From a parallel path came",
}

// TableStats reports how many templates each table holds.
type TableStats struct {
	Openings         map[Genre]int       `json:"openings"`
	Actions          map[Mood]int        `json:"actions"`
	TensionPhrases   map[TensionTier]int `json:"tension_phrases"`
	Characters       int                 `json:"characters"`
	Locations        int                 `json:"locations"`
	Transitions      int                 `json:"transitions"`
	MergeTransitions int                 `json:"merge_transitions"`
}

// Stats returns the size of every template table.
func Stats() TableStats {
	s := TableStats{
		Openings:         make(map[Genre]int, len(Genres)),
		Actions:          make(map[Mood]int, len(Moods)),
		TensionPhrases:   make(map[TensionTier]int, 3),
		Characters:       len(characters),
		Locations:        len(locations),
		Transitions:      len(transitions),
		MergeTransitions: len(mergeTransitions),
	}
	for _, g := range Genres {
		s.Openings[g] = len(openings[g])
	}
	for _, m := range Moods {
		s.Actions[m] = len(actions[m])
	}
	for _, t := range []TensionTier{TensionLow, TensionMedium, TensionHigh} {
		s.TensionPhrases[t] = len(tensionPhrases[t])
	}
	return s
}

// ValidateTemplates reports every empty table. The engine indexes these tables
// with random draws and would panic on an empty one.
func ValidateTemplates() error {
	var problems []string
	s := Stats()
	for _, g := range Genres {
		if s.Openings[g] == 0 {
			problems = append(problems, fmt.Sprintf("genre %q has no openings", g))
		}
	}
	for _, m := range Moods {
		if s.Actions[m] == 0 {
			problems = append(problems, fmt.Sprintf("mood %q has no actions", m))
		}
	}
	for tier, n := range s.TensionPhrases {
		if n == 0 {
			problems = append(problems, fmt.Sprintf("tension tier %q has no phrases", tier))
		}
	}
	if s.Characters == 0 {
		problems = append(problems, "character table is empty")
	}
	if s.Locations == 0 {
		problems = append(problems, "location table is empty")
	}
	if s.Transitions == 0 {
		problems = append(problems, "transition table is empty")
	}
	if s.MergeTransitions == 0 {
		problems = append(problems, "merge transition table is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid templates: %s", strings.Join(problems, "; "))
	}
	return nil
}
