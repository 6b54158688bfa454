package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/s22625/nexusflow/internal/render"
)

// Color palette
var (
	colorGreen   = lipgloss.Color("42")
	colorYellow  = lipgloss.Color("214")
	colorRed     = lipgloss.Color("196")
	colorBlue    = lipgloss.Color("39")
	colorCyan    = lipgloss.Color("45")
	colorGray    = lipgloss.Color("245")
	colorMagenta = lipgloss.Color("165")
	colorWhite   = lipgloss.Color("255")
	colorBorder  = lipgloss.Color("240")
)

// Styles defines the visual styles for the monitor dashboard
type Styles struct {
	// Box styles
	Box      lipgloss.Style
	Modal    lipgloss.Style
	AlertBar lipgloss.Style

	// Text styles
	Title  lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	Normal lipgloss.Style
	Muted  lipgloss.Style
	Faint  lipgloss.Style
	Error  lipgloss.Style

	// State pill
	StateRunning lipgloss.Style
	StateIdle    lipgloss.Style

	// Scoreboard
	ScoreGood lipgloss.Style
	ScoreBad  lipgloss.Style

	// Log rows: class marker plus one of the rotating colors
	LogSuccess lipgloss.Style
	LogFail    lipgloss.Style
	LogInfo    lipgloss.Style
	LogColors  [render.ColorBuckets]lipgloss.Style

	IndicatorSuccess string
	IndicatorFail    string
	IndicatorInfo    string

	// Scoreboard column widths
	ColCount int
	ColScore int
}

// DefaultStyles returns the default style configuration
func DefaultStyles() Styles {
	return Styles{
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),

		Modal: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorRed).
			Padding(1, 2),

		AlertBar: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorRed).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGray),

		Label: lipgloss.NewStyle().
			Foreground(colorGray),

		Normal: lipgloss.NewStyle().
			Foreground(colorWhite),

		Muted: lipgloss.NewStyle().
			Foreground(colorGray),

		Faint: lipgloss.NewStyle().
			Faint(true),

		Error: lipgloss.NewStyle().
			Foreground(colorRed),

		StateRunning: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen),

		StateIdle: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGray),

		ScoreGood: lipgloss.NewStyle().
			Foreground(colorGreen),

		ScoreBad: lipgloss.NewStyle().
			Foreground(colorRed),

		LogSuccess: lipgloss.NewStyle().
			Foreground(colorGreen),

		LogFail: lipgloss.NewStyle().
			Foreground(colorRed),

		LogInfo: lipgloss.NewStyle().
			Foreground(colorGray),

		LogColors: [render.ColorBuckets]lipgloss.Style{
			lipgloss.NewStyle().Foreground(colorCyan),
			lipgloss.NewStyle().Foreground(colorBlue),
			lipgloss.NewStyle().Foreground(colorMagenta),
			lipgloss.NewStyle().Foreground(colorYellow),
			lipgloss.NewStyle().Foreground(colorWhite),
		},

		IndicatorSuccess: "✓",
		IndicatorFail:    "✗",
		IndicatorInfo:    "·",

		ColCount: 9,
		ColScore: 7,
	}
}

// StyleState returns the styled RUNNING/IDLE pill
func (s Styles) StyleState(state string) string {
	if state == render.StateRunning {
		return s.StateRunning.Render("● " + state)
	}
	return s.StateIdle.Render("○ " + state)
}

// StyleScore colors a score by its class
func (s Styles) StyleScore(class, text string) string {
	if class == render.ClassBad {
		return s.ScoreBad.Render(text)
	}
	return s.ScoreGood.Render(text)
}

// StyleLogRow renders one log line
func (s Styles) StyleLogRow(row render.LogRow) string {
	var marker string
	switch row.Class {
	case render.ClassSuccess:
		marker = s.LogSuccess.Render(s.IndicatorSuccess)
	case render.ClassFail:
		marker = s.LogFail.Render(s.IndicatorFail)
	default:
		marker = s.LogInfo.Render(s.IndicatorInfo)
	}
	color := s.LogColors[row.Color%render.ColorBuckets]
	return marker + " " + color.Render(row.Text)
}
