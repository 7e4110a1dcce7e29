package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/outreachbot/internal/engine"
	"github.com/example/outreachbot/internal/orchestrator"
	"github.com/example/outreachbot/internal/report"
)

var (
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(24)
	boxStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

func box(title string, rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, keyStyle.Render(r[0])+r[1])
	}
	return boxStyle.Render(headStyle.Render(title) + "\n" + strings.Join(lines, "\n"))
}

func printStatus(s report.Status) {
	fmt.Println(box("OUTREACH STATUS", s.Rows()))
}

func printRun(r orchestrator.Report) {
	rows := [][2]string{
		{"Run", r.RunID},
		{"Processed", fmt.Sprint(r.Processed)},
		{"Executed", fmt.Sprint(r.Executed)},
		{"Failed", fmt.Sprint(r.Failed)},
		{"Skipped", fmt.Sprint(r.Skipped)},
	}
	if r.Recovered > 0 {
		rows = append(rows, [2]string{"Recovered", fmt.Sprint(r.Recovered)})
	}
	reasons := make([]string, 0, len(r.Reasons))
	for reason := range r.Reasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		rows = append(rows, [2]string{"  " + reason, fmt.Sprint(r.Reasons[engine.Reason(reason)])})
	}
	title := "RUN SUMMARY"
	if r.Stopped {
		title += " (stopped early)"
	}
	fmt.Println(box(title, rows))
}
