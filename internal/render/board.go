// Package render draws kanban boards for terminal output.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sprintboard/internal/models"
)

const columnWidth = 28

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(columnWidth)

	headerStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusTodo       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusInReview   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

func styleForStatus(status models.StoryStatus) lipgloss.Style {
	switch status {
	case models.StatusTodo:
		return statusTodo
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusInReview:
		return statusInReview
	case models.StatusDone:
		return statusDone
	default:
		return lipgloss.NewStyle()
	}
}

// Board renders the board as side-by-side columns followed by a metrics summary.
func Board(b models.Board) string {
	title := titleStyle.Render(fmt.Sprintf("%s / %s", b.ProjectName, b.SprintName))

	columns := make([]string, 0, len(b.Columns))
	for _, col := range b.Columns {
		columns = append(columns, columnStyle.Render(renderColumn(col)))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, columns...)

	return lipgloss.JoinVertical(lipgloss.Left, title, "", body, Metrics(b.Metrics))
}

func renderColumn(col models.BoardColumn) string {
	var sb strings.Builder
	header := fmt.Sprintf("%s (%d)", col.Status, len(col.Stories))
	sb.WriteString(headerStyle.Inherit(styleForStatus(col.Status)).Render(header))
	sb.WriteString("\n")
	if len(col.Stories) == 0 {
		sb.WriteString(mutedStyle.Render("no stories"))
		return sb.String()
	}
	for i, s := range col.Stories {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(storyLine(s))
	}
	return sb.String()
}

func storyLine(s models.Story) string {
	points := "-"
	if s.StoryPoints != nil {
		points = fmt.Sprintf("%d", *s.StoryPoints)
	}
	return fmt.Sprintf("#%d %s %s", s.ID, s.Title, mutedStyle.Render("["+points+"pt "+s.Priority.String()+"]"))
}

// Metrics renders the one-line sprint summary shown under the board.
func Metrics(m models.SprintMetrics) string {
	return mutedStyle.Render(fmt.Sprintf(
		"%d/%d stories done, %d/%d points, %.1f%% complete, %d days left",
		m.CompletedStories, m.TotalStories,
		m.CompletedPoints, m.TotalPoints,
		m.CompletionPercentage, m.DaysRemaining,
	))
}
