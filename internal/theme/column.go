package theme

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/taskboard/internal/model"
)

// RenderColumn draws one board column: a status header followed by its
// tasks in the order given, each with priority, title, rank and age.
func RenderColumn(col model.ColumnKey, tasks []model.Task, now time.Time) string {
	var b strings.Builder
	header := HeaderStyle.Render(col.ProjectID) + " " + StatusStyle(col.Status).Render(col.Status)
	b.WriteString(header)

	if len(tasks) == 0 {
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("  (empty)"))
		return ColumnStyle.Render(b.String())
	}

	for i, t := range tasks {
		b.WriteString("\n")
		b.WriteString(RenderRow(i, t, now))
	}
	return ColumnStyle.Render(b.String())
}

// RenderRow draws a single task line at position i.
func RenderRow(i int, t model.Task, now time.Time) string {
	line := fmt.Sprintf("%2d. %s %s %s  %s",
		i,
		PriorityStyle(t.Priority).Render(PriorityLabel(t.Priority)),
		t.Title,
		RankStyle.Render("["+t.Rank+"]"),
		RankStyle.Render(RelativeTime(t.UpdatedAt, now)),
	)
	return RowStyle.Render(line)
}

// PriorityLabel returns a short label for the given priority level.
func PriorityLabel(p int) string {
	switch p {
	case model.PriorityCritical:
		return "P1"
	case model.PriorityHigh:
		return "P2"
	case model.PriorityMedium:
		return "P3"
	case model.PriorityLow:
		return "P4"
	case model.PriorityLowest:
		return "P5"
	default:
		return "P?"
	}
}

// RelativeTime returns a human-friendly age of t as seen at now.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
