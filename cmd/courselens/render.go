package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/yungbote/courselens-backend/internal/domain"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginTop(1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	noteStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	toneStyles = map[domain.Tone]lipgloss.Style{
		domain.ToneGood:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.ToneWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.ToneBad:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		domain.ToneNeutral: lipgloss.NewStyle(),
	}
)

func renderEnvelope(env *domain.Envelope) string {
	var b strings.Builder

	b.WriteString(headingStyle.Render(fmt.Sprintf("Course %s", env.CourseID)) + "\n")
	kpis := make([][]string, 0, len(env.KPIs))
	for _, k := range env.KPIs {
		kpis = append(kpis, []string{k.Name, formatValue(k.Value)})
	}
	b.WriteString(grid([]string{"Indicator", "Value"}, kpis) + "\n")

	section(&b, "Echo360 modules", env.Echo.Modules)
	section(&b, "Gradebook modules", env.Grades.ModuleMetrics)
	section(&b, "Gradebook summary", env.Grades.Summary)
	if env.Echo.Students != nil {
		section(&b, "Echo360 students", env.Echo.Students)
	}
	if env.Grades.Gradebook != nil {
		section(&b, "Gradebook", env.Grades.Gradebook)
	}

	b.WriteString(headingStyle.Render("Analysis") + "\n")
	switch {
	case env.Analysis.Error != nil:
		b.WriteString(errorStyle.Render(*env.Analysis.Error) + "\n")
	case env.Analysis.Text != nil:
		for _, card := range env.Analysis.Text.Cards {
			renderCard(&b, card)
		}
	}
	return b.String()
}

func section(b *strings.Builder, title string, t *domain.Table) {
	b.WriteString(headingStyle.Render(title) + "\n")
	if t.Empty() {
		b.WriteString(noteStyle.Render("(empty)") + "\n")
		return
	}
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = formatValue(row[col])
		}
		rows = append(rows, cells)
	}
	b.WriteString(grid(t.Columns, rows) + "\n")
}

func renderCard(b *strings.Builder, card domain.AnalysisCard) {
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(card.Title) + "\n")
	b.WriteString(card.Summary + "\n")
	for _, bullet := range card.Bullets {
		b.WriteString("  • " + bullet + "\n")
	}
	for _, m := range card.Metrics {
		style, ok := toneStyles[m.Tone]
		if !ok {
			style = toneStyles[domain.ToneNeutral]
		}
		b.WriteString("  " + m.Label + ": " + style.Render(m.Value) + "\n")
	}
	b.WriteString("\n")
}

func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
