// Package report renders analysis and optimization results for terminals
// and exports flows as DOT or Mermaid diagrams.
package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// Palette shared by terminal output and diagram exports.
const (
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorOrange = "#db6d28"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds the lipgloss styles used by the summaries.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Good    lipgloss.Style
	Bad     lipgloss.Style
	Box     lipgloss.Style

	severity map[patterns.Severity]lipgloss.Style
}

// NewStyles builds styles for output written to w. Color is dropped when w
// is not a terminal.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBright)),
		Section: r.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)).MarginTop(1),
		Label:   r.NewStyle().Foreground(lipgloss.Color(ColorGray)).Width(22),
		Value:   r.NewStyle().Foreground(lipgloss.Color(ColorText)),
		Muted:   r.NewStyle().Foreground(lipgloss.Color(ColorGray)).Italic(true),
		Good:    r.NewStyle().Foreground(lipgloss.Color(ColorGreen)).Bold(true),
		Bad:     r.NewStyle().Foreground(lipgloss.Color(ColorRed)).Bold(true),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),
		severity: map[patterns.Severity]lipgloss.Style{
			patterns.SeverityLow:      r.NewStyle().Foreground(lipgloss.Color(ColorGray)),
			patterns.SeverityMedium:   r.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
			patterns.SeverityHigh:     r.NewStyle().Foreground(lipgloss.Color(ColorOrange)).Bold(true),
			patterns.SeverityCritical: r.NewStyle().Foreground(lipgloss.Color(ColorRed)).Bold(true),
		},
	}
}

// Severity returns the badge style for s.
func (s *Styles) Severity(sev patterns.Severity) lipgloss.Style {
	if st, ok := s.severity[sev]; ok {
		return st
	}
	return s.Value
}

// SeverityColor is the diagram fill for a severity.
func SeverityColor(sev patterns.Severity) string {
	switch sev {
	case patterns.SeverityCritical:
		return ColorRed
	case patterns.SeverityHigh:
		return ColorOrange
	case patterns.SeverityMedium:
		return ColorYellow
	case patterns.SeverityLow:
		return ColorGray
	}
	return ColorBorder
}
