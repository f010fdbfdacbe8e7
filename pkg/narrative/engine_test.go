package narrative

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InitialContext(t *testing.T) {
	e := New(WithSeed(7))
	ctx := e.Context()

	_, moodOK := ParseMood(string(ctx.Mood))
	_, genreOK := ParseGenre(string(ctx.Genre))
	assert.True(t, moodOK, "mood should be a known mood")
	assert.True(t, genreOK, "genre should be a known genre")
	assert.Len(t, ctx.Characters, 1)
	assert.Len(t, ctx.Locations, 1)
	assert.Contains(t, characters, ctx.Characters[0])
	assert.Contains(t, locations, ctx.Locations[0])
	assert.Empty(t, ctx.Themes)
	assert.Empty(t, ctx.RecentEvents)
	assert.Equal(t, 0.3, ctx.TensionLevel)
	assert.Equal(t, 0, ctx.StoryLength)
}

func TestGenerateOpening_SameSeedSameText(t *testing.T) {
	for _, seed := range []uint64{0, 1, 42, 9001} {
		a := New(WithSeed(seed))
		b := New(WithSeed(seed))
		assert.Equal(t, a.GenerateOpening(), b.GenerateOpening(), "seed %d", seed)
	}
}

func TestGenerateOpening_UpdatesContext(t *testing.T) {
	e := New(WithSeed(3))
	genre := e.Context().Genre

	text := e.GenerateOpening()
	ctx := e.Context()

	require.Len(t, ctx.Characters, 2)
	require.Len(t, ctx.Locations, 2)
	assert.Equal(t, []string{EventStoryOpening}, ctx.RecentEvents)
	assert.Equal(t, len(strings.Fields(text)), ctx.StoryLength)

	newChar := ctx.Characters[1]
	newLoc := ctx.Locations[1]
	assert.True(t, strings.HasSuffix(text, newChar+" arrived at "+newLoc+"."), "got %q", text)

	hasOpening := slices.ContainsFunc(openings[genre], func(o string) bool {
		return strings.HasPrefix(text, o+" ")
	})
	assert.True(t, hasOpening, "opening should come from the %s table: %q", genre, text)
}

func TestAdvance_TensionStaysInBounds(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		e := New(WithSeed(seed))
		for i := 0; i < 60; i++ {
			e.Advance(&Interaction{Type: InteractionScroll, Amount: 500})
			tension := e.Context().TensionLevel
			require.GreaterOrEqual(t, tension, 0.0, "seed %d step %d", seed, i)
			require.LessOrEqual(t, tension, 1.0, "seed %d step %d", seed, i)
		}
		for i := 0; i < 60; i++ {
			e.Advance(nil)
			tension := e.Context().TensionLevel
			require.GreaterOrEqual(t, tension, 0.0)
			require.LessOrEqual(t, tension, 1.0)
		}
	}
}

func TestAdvance_StoryLengthCountsWords(t *testing.T) {
	e := New(WithSeed(11))
	prev := e.Context().StoryLength

	opening := e.GenerateOpening()
	require.Equal(t, prev+len(strings.Fields(opening)), e.Context().StoryLength)
	prev = e.Context().StoryLength

	for i := 0; i < 100; i++ {
		text := e.Advance(nil)
		require.NotEmpty(t, text)
		length := e.Context().StoryLength
		require.Equal(t, prev+len(strings.Fields(text)), length)
		require.GreaterOrEqual(t, length, prev)
		prev = length
	}
}

func TestAdvance_KeypressSetsMoodBeforeRendering(t *testing.T) {
	for _, key := range []string{"a", "A"} {
		for seed := uint64(0); seed < 10; seed++ {
			e := New(WithSeed(seed))
			require.True(t, e.SetMood("dark"))

			text := e.Advance(&Interaction{Type: InteractionKeypress, Key: key})

			usedAdventurous := slices.ContainsFunc(actions[MoodAdventurous], func(a string) bool {
				return strings.Contains(text, " "+a)
			})
			assert.True(t, usedAdventurous, "key %q seed %d: %q", key, seed, text)
		}
	}
}

func TestAdvance_NewcomerIsAppendedOnce(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		e := New(WithSeed(seed))
		for i := 0; i < 20; i++ {
			before := len(e.Context().Characters)
			text := e.Advance(nil)
			after := e.Context().Characters
			if strings.Contains(text, "It was then that ") {
				require.Len(t, after, before+1)
				assert.True(t, strings.HasSuffix(text, "It was then that "+after[len(after)-1]+" appeared."))
			} else {
				require.Len(t, after, before)
			}
		}
	}
}

func TestAdvance_EmptyContextListsFallBack(t *testing.T) {
	e := New(WithSeed(5))
	e.ctx.Characters = nil
	e.ctx.Locations = nil

	for i := 0; i < 20; i++ {
		assert.NotEmpty(t, e.Advance(nil))
	}
}

func TestApplyInfluence(t *testing.T) {
	tests := []struct {
		name        string
		startMood   Mood
		startTen    float64
		interaction Interaction
		wantMood    Mood
		wantTension float64
	}{
		{
			name:        "long scroll raises tension",
			startMood:   MoodDark,
			startTen:    0.3,
			interaction: Interaction{Type: InteractionScroll, Amount: 150},
			wantMood:    MoodDark,
			wantTension: 0.4,
		},
		{
			name:        "short scroll is ignored",
			startMood:   MoodDark,
			startTen:    0.3,
			interaction: Interaction{Type: InteractionScroll, Amount: 100},
			wantMood:    MoodDark,
			wantTension: 0.3,
		},
		{
			name:        "scroll clamps at one",
			startMood:   MoodDark,
			startTen:    0.95,
			interaction: Interaction{Type: InteractionScroll, Amount: 1000},
			wantMood:    MoodDark,
			wantTension: 1.0,
		},
		{
			name:        "keypress p is philosophical",
			startMood:   MoodDark,
			startTen:    0.3,
			interaction: Interaction{Type: InteractionKeypress, Key: "P"},
			wantMood:    MoodPhilosophical,
			wantTension: 0.3,
		},
		{
			name:        "unmapped key is ignored",
			startMood:   MoodWhimsical,
			startTen:    0.3,
			interaction: Interaction{Type: InteractionKeypress, Key: "x"},
			wantMood:    MoodWhimsical,
			wantTension: 0.3,
		},
		{
			name:        "unknown type is ignored",
			startMood:   MoodRomantic,
			startTen:    0.5,
			interaction: Interaction{Type: "hover", Amount: 500, Key: "d"},
			wantMood:    MoodRomantic,
			wantTension: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(WithSeed(1))
			e.ctx.Mood = tt.startMood
			e.ctx.TensionLevel = tt.startTen
			locsBefore := e.Context().Locations

			e.applyInfluence(&tt.interaction)

			assert.Equal(t, tt.wantMood, e.ctx.Mood)
			assert.InDelta(t, tt.wantTension, e.ctx.TensionLevel, 1e-9)
			assert.Equal(t, locsBefore, e.Context().Locations)
		})
	}
}

func TestApplyInfluence_ClickAddsUniqueLocations(t *testing.T) {
	grew := false
	for seed := uint64(0); seed < 30; seed++ {
		e := New(WithSeed(seed))
		for i := 0; i < 40; i++ {
			e.applyInfluence(&Interaction{Type: InteractionClick})
		}
		locs := e.Context().Locations
		assert.Equal(t, dedupe(locs), locs, "click must not add duplicates")
		if len(locs) > 1 {
			grew = true
		}
	}
	assert.True(t, grew, "clicks should eventually add locations")
}

func TestMergeStorylines_EmptyBehavesLikeAdvance(t *testing.T) {
	a := New(WithSeed(21))
	b := New(WithSeed(21))

	merged := a.MergeStorylines(nil)
	advanced := b.Advance(nil)

	assert.NotEmpty(t, merged)
	assert.Equal(t, advanced, merged)
	assert.Equal(t, b.Context(), a.Context())
	assert.NotContains(t, a.Context().RecentEvents, EventStorylineMerge)
	assert.NotContains(t, merged, mergeCloser)
}

func TestMergeStorylines_TakesFirstTenWords(t *testing.T) {
	e := New(WithSeed(8))
	e.GenerateOpening()
	lengthBefore := e.Context().StoryLength

	text := e.MergeStorylines([]string{"one two three four five six seven eight nine ten eleven"})

	assert.Contains(t, text, "one two three four five six seven eight nine ten... And so the stories became one.")
	assert.NotContains(t, text, "eleven")
	assert.True(t, slices.ContainsFunc(mergeTransitions, func(m string) bool {
		return strings.HasPrefix(text, m+" ")
	}), "merge text should start with a merge transition: %q", text)

	ctx := e.Context()
	assert.Equal(t, EventStorylineMerge, ctx.RecentEvents[len(ctx.RecentEvents)-1])
	assert.Equal(t, lengthBefore, ctx.StoryLength, "merge does not count words")
}

func TestMergeStorylines_ShortSegmentKeptWhole(t *testing.T) {
	e := New(WithSeed(8))
	text := e.MergeStorylines([]string{"a  short   tale"})
	assert.True(t, strings.HasSuffix(text, " a  short   tale"+mergeCloser), "got %q", text)
}

func TestSetMood(t *testing.T) {
	e := New(WithSeed(2))

	assert.True(t, e.SetMood("dark"))
	assert.Equal(t, MoodDark, e.Summary().Mood)

	before := e.Summary()
	assert.False(t, e.SetMood("not_a_mood"))
	assert.False(t, e.SetMood("Dark"))
	assert.Equal(t, before, e.Summary())
}

func TestSetGenre(t *testing.T) {
	e := New(WithSeed(2))

	assert.True(t, e.SetGenre("scifi"))
	assert.Equal(t, GenreSciFi, e.Summary().Genre)

	before := e.Summary()
	assert.False(t, e.SetGenre("nonsense"))
	assert.Equal(t, before, e.Summary())
}

func TestReset_ReplacesContext(t *testing.T) {
	e := New(WithSeed(4))
	e.GenerateOpening()
	for i := 0; i < 10; i++ {
		e.Advance(&Interaction{Type: InteractionScroll, Amount: 200})
	}
	e.MergeStorylines([]string{"somebody else's story goes on and on"})
	e.ctx.Themes = append(e.ctx.Themes, "loss")

	e.Reset()
	ctx := e.Context()

	assert.Equal(t, 0, ctx.StoryLength)
	assert.Empty(t, ctx.RecentEvents)
	assert.Empty(t, ctx.Themes)
	assert.Len(t, ctx.Characters, 1)
	assert.Len(t, ctx.Locations, 1)
	assert.Equal(t, 0.3, ctx.TensionLevel)
}

func TestSummary_DeduplicatesEntities(t *testing.T) {
	e := New(WithSeed(6))
	e.ctx.Characters = []string{"the healer", "the oracle", "the healer"}
	e.ctx.Locations = []string{"the dream realm", "the dream realm"}
	e.ctx.RecentEvents = []string{EventStoryOpening}

	s := e.Summary()

	assert.ElementsMatch(t, []string{"the healer", "the oracle"}, s.Characters)
	assert.ElementsMatch(t, []string{"the dream realm"}, s.Locations)
	assert.Equal(t, e.ctx.Mood, s.Mood)
	assert.Equal(t, e.ctx.Genre, s.Genre)
}

func TestContext_ReturnsCopy(t *testing.T) {
	e := New(WithSeed(6))
	ctx := e.Context()
	ctx.Characters[0] = "tampered"
	assert.NotEqual(t, "tampered", e.Context().Characters[0])
}

func TestMoodForKey(t *testing.T) {
	tests := map[string]Mood{
		"m": MoodMysterious,
		"A": MoodAdventurous,
		"d": MoodDark,
		"W": MoodWhimsical,
		"r": MoodRomantic,
		"s": MoodSuspenseful,
		"p": MoodPhilosophical,
	}
	for key, want := range tests {
		got, ok := MoodForKey(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	for _, key := range []string{"", "x", "mm", "Enter"} {
		_, ok := MoodForKey(key)
		assert.False(t, ok, key)
	}
}
