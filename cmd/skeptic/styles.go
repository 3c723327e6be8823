package main

import (
	"github.com/charmbracelet/lipgloss"

	"skeptic/internal/artifact"
	"skeptic/internal/pipeline"
)

// Semantic colors
var (
	colorPrimary     = lipgloss.Color("#8BC34A") // Lime Green
	colorDestructive = lipgloss.Color("#e53935") // Red
	colorWarning     = lipgloss.Color("#FFC107") // Yellow
	colorInfo        = lipgloss.Color("#2196F3") // Blue
	colorMuted       = lipgloss.Color("#6b7280")
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

func statusStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.StatusComplete:
		return lipgloss.NewStyle().Foreground(colorPrimary)
	case pipeline.StatusFailed:
		return lipgloss.NewStyle().Foreground(colorDestructive)
	case pipeline.StatusRunning:
		return lipgloss.NewStyle().Foreground(colorInfo)
	default:
		return mutedStyle
	}
}

func tierStyle(t artifact.Tier) lipgloss.Style {
	switch t {
	case artifact.TierHigh:
		return lipgloss.NewStyle().Foreground(colorDestructive).Bold(true)
	case artifact.TierMedium:
		return lipgloss.NewStyle().Foreground(colorWarning)
	case artifact.TierLow:
		return lipgloss.NewStyle().Foreground(colorPrimary)
	default:
		return mutedStyle
	}
}

// renderTable lays out rows in fixed-width columns. The first row is the header.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var lines []string
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			st := cellStyle.Width(widths[i] + 2)
			if r == 0 {
				cell = headerStyle.Render(cell)
			}
			cells[i] = st.Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
