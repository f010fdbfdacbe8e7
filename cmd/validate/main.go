package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func main() {
	asJSON := flag.Bool("json", false, "print the coverage report as JSON")
	sample := flag.Int("sample", 0, "render a sample story of this many segments after the report")
	seed := flag.Uint64("seed", 1, "seed for the sample story")
	flag.Parse()

	stats := narrative.Stats()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(os.Stdout, stats)
	}

	if err := narrative.ValidateTemplates(); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	if *sample > 0 {
		printSample(os.Stdout, *seed, *sample)
	}

	if !*asJSON {
		fmt.Println("Template tables are complete!")
	}
}

var title = cases.Title(language.English)

func printReport(w io.Writer, s narrative.TableStats) {
	fmt.Fprintln(w, "Openings by genre:")
	for _, g := range narrative.Genres {
		fmt.Fprintf(w, "  %-14s %3d\n", title.String(g.String()), s.Openings[g])
	}

	fmt.Fprintln(w, "Actions by mood:")
	for _, m := range narrative.Moods {
		fmt.Fprintf(w, "  %-14s %3d\n", title.String(m.String()), s.Actions[m])
	}

	fmt.Fprintln(w, "Tension phrases by tier:")
	tiers := make([]string, 0, len(s.TensionPhrases))
	for t := range s.TensionPhrases {
		tiers = append(tiers, string(t))
	}
	sort.Strings(tiers)
	for _, t := range tiers {
		fmt.Fprintf(w, "  %-14s %3d\n", title.String(t), s.TensionPhrases[narrative.TensionTier(t)])
	}

	fmt.Fprintf(w, "Characters:        %3d\n", s.Characters)
	fmt.Fprintf(w, "Locations:         %3d\n", s.Locations)
	fmt.Fprintf(w, "Transitions:       %3d\n", s.Transitions)
	fmt.Fprintf(w, "Merge transitions: %3d\n", s.MergeTransitions)
}

func printSample(w io.Writer, seed uint64, segments int) {
	e := narrative.New(narrative.WithSeed(seed))
	fmt.Fprintf(w, "\nSample story (seed %d):\n", seed)
	fmt.Fprintf(w, "  %s\n", e.GenerateOpening())
	for i := 1; i < segments; i++ {
		fmt.Fprintf(w, "  %s\n", e.Advance(nil))
	}
	summary := e.Summary()
	fmt.Fprintf(w, "Mood %s, genre %s, tension %.2f, %d words\n",
		summary.Mood, summary.Genre, summary.TensionLevel, summary.StoryLength)
}
