package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	AppTitle = "Infinite Story"
	HelpText = "enter continue · m/a/d/w/r/s/p mood · pgdown scroll · c click · g genre · y copy · q quit"

	// Page-down scrolls past the tension threshold.
	scrollAmount = 150
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api           *apiClient
	segments      []string
	summary       *narrative.Summary
	storyViewport viewport.Model
	metaViewport  viewport.Model
	ready         bool
	width         int
	height        int
	err           error
	status        string
	loading       bool

	// Genre selection state
	showGenreModal bool
	selectedGenre  int

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type segmentMsg struct {
	result *segmentResult
	err    error
}

type genreSetMsg struct {
	summary *narrative.Summary
	err     error
}

type copiedMsg struct {
	words int
	err   error
}

type progressTickMsg struct{}

var titleCaser = cases.Title(language.English)

var (
	storyPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	storyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	mergedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(api *apiClient) ConsoleUI {
	return ConsoleUI{
		api:     api,
		loading: true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.startStory(), progressTick())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showGenreModal {
		return m.updateGenreModal(msg)
	}

	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		storyWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - storyWidth - 6
		if !m.ready {
			m.storyViewport = viewport.New(storyWidth, m.height-8)
			m.metaViewport = viewport.New(metaWidth, m.height-4)
			m.ready = true
		} else {
			m.storyViewport.Width = storyWidth
			m.storyViewport.Height = m.height - 8
			m.metaViewport.Width = metaWidth
			m.metaViewport.Height = m.height - 4
		}
		m.writeStoryContent()
		m.writeMetaContent()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.showQuitModal = true
			return m, nil
		case "up", "down", "pgup", "k", "j":
			m.storyViewport, cmd = m.storyViewport.Update(msg)
			return m, cmd
		}

		if m.loading {
			return m, nil
		}

		switch msg.String() {
		case "enter":
			return m.advance(nil)
		case "pgdown":
			m.storyViewport, cmd = m.storyViewport.Update(msg)
			return m.advance(&narrative.Interaction{Type: narrative.InteractionScroll, Amount: scrollAmount})
		case "c":
			return m.advance(&narrative.Interaction{Type: narrative.InteractionClick, Target: "story"})
		case "g":
			m.showGenreModal = true
			m.selectedGenre = 0
			return m, nil
		case "y":
			return m, m.copyStory()
		default:
			if _, ok := narrative.MoodForKey(msg.String()); ok {
				return m.advance(&narrative.Interaction{Type: narrative.InteractionKeypress, Key: msg.String()})
			}
		}

	case segmentMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.appendSegment(msg.result)
		}
		m.writeStoryContent()
		m.writeMetaContent()

	case genreSetMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.summary = msg.summary
			m.status = "Genre set to " + titleCaser.String(msg.summary.Genre.String())
		}
		m.writeMetaContent()

	case copiedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = fmt.Sprintf("Copied %d words to the clipboard", msg.words)
		}
		m.writeMetaContent()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeStoryContent()
			return m, progressTick()
		}
	}

	return m, cmd
}

// advance requests the next segment, optionally steered by an interaction.
func (m ConsoleUI) advance(in *narrative.Interaction) (tea.Model, tea.Cmd) {
	m.loading = true
	m.progressTick = 0
	m.status = ""
	m.writeStoryContent()
	api := m.api
	return m, tea.Batch(func() tea.Msg {
		result, err := api.continueStory(in)
		return segmentMsg{result: result, err: err}
	}, progressTick())
}

func (m ConsoleUI) startStory() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		result, err := api.startStory()
		return segmentMsg{result: result, err: err}
	}
}

func (m ConsoleUI) setGenre(genre narrative.Genre) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		summary, err := api.setGenre(genre)
		return genreSetMsg{summary: summary, err: err}
	}
}

func (m ConsoleUI) copyStory() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		text, err := api.fullStory()
		if err != nil {
			return copiedMsg{err: err}
		}
		if err := clipboard.WriteAll(text); err != nil {
			return copiedMsg{err: fmt.Errorf("failed to copy story: %w", err)}
		}
		return copiedMsg{words: len(strings.Fields(text))}
	}
}

func (m *ConsoleUI) appendSegment(result *segmentResult) {
	if result == nil {
		return
	}
	content := result.Segment.Content
	if result.Segment.IsMerged {
		content = mergedStyle.Render(content)
	} else {
		content = storyStyle.Render(content)
	}
	m.segments = append(m.segments, content)
	summary := result.Context
	m.summary = &summary
}

func (m *ConsoleUI) writeStoryContent() {
	if !m.ready {
		return
	}
	width := m.storyViewport.Width - 6
	if width <= 0 {
		width = 40
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(AppTitle))
	b.WriteString("\n\n")
	for _, seg := range m.segments {
		b.WriteString(wordwrap.String(seg, width))
		b.WriteString("\n\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(wordwrap.String("Error: "+m.err.Error(), width)))
		b.WriteString("\n\n")
	}
	if m.loading {
		b.WriteString(loadingStyle.Render("The story unfolds..."))
		b.WriteString("\n")
		b.WriteString(m.renderProgressBar())
	}

	m.storyViewport.SetContent(b.String())
	m.storyViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetaContent() {
	if !m.ready {
		return
	}
	m.metaViewport.SetContent(writeMetadata(m.summary, m.status, m.metaViewport.Width))
}

func writeMetadata(s *narrative.Summary, status string, width int) string {
	if s == nil {
		return promptStyle.Render("No story yet")
	}
	if width <= 0 {
		width = 20
	}

	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(value, width))
		b.WriteString("\n\n")
	}
	field("Genre", titleCaser.String(s.Genre.String()))
	field("Mood", titleCaser.String(s.Mood.String()))
	field("Tension", fmt.Sprintf("%.1f (%s)", s.TensionLevel, narrative.TierFor(s.TensionLevel)))
	field("Words", fmt.Sprintf("%d", s.StoryLength))
	if len(s.Characters) > 0 {
		field("Characters", strings.Join(s.Characters, ", "))
	}
	if len(s.Locations) > 0 {
		field("Locations", titleCaser.String(strings.Join(s.Locations, ", ")))
	}
	if status != "" {
		b.WriteString(loadingStyle.Render(wordwrap.String(status, width)))
	}
	return b.String()
}

func (m ConsoleUI) updateGenreModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.showQuitModal = true
		case "esc":
			m.showGenreModal = false
		case "up", "k":
			if m.selectedGenre > 0 {
				m.selectedGenre--
			}
		case "down", "j":
			if m.selectedGenre < len(narrative.Genres)-1 {
				m.selectedGenre++
			}
		case "enter":
			m.showGenreModal = false
			m.loading = true
			return m, m.setGenre(narrative.Genres[m.selectedGenre])
		}
	}
	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter:
			return m, tea.Quit
		case tea.KeyEsc:
			m.showQuitModal = false
			return m, nil
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave your story?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderGenreModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Select a Genre"))
	content.WriteString("\n\n")
	for i, genre := range narrative.Genres {
		name := titleCaser.String(genre.String())
		if i == m.selectedGenre {
			content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", name)))
		} else {
			content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", name)))
		}
		content.WriteString("\n")
	}
	content.WriteString("\n")
	content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Esc to cancel"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showGenreModal {
		return m.renderGenreModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	storyWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - storyWidth - 6

	storyPanel := storyPanelStyle.Width(storyWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.storyViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(storyWidth-4, 0))),
			promptStyle.Render(HelpText),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, storyPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.storyViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
