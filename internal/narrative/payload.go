package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/yungbote/courselens-backend/internal/domain"
)

const (
	maxTableRows = 30
	// A float column is shown as percentages when more than this share of its
	// non-null values lies in [0, 1].
	fractionShare = 0.6
)

// Tables are the de-identified inputs the narrative is written from. Nil
// tables render as empty.
type Tables struct {
	EchoModules         *domain.Table
	GradebookSummary    *domain.Table
	GradebookModuleRows *domain.Table
}

// BuildPayload renders the user message sent to the model. The output depends
// only on its inputs.
func BuildPayload(kpis domain.KPIs, tables Tables) string {
	var b strings.Builder
	b.WriteString("Data for analysis (de-identified):\n\n")

	b.WriteString("# KPIs\n")
	b.WriteString(renderKPIs(kpis))
	b.WriteString("\n\n# Echo Module Metrics (per-module)\n")
	b.WriteString(renderTable(tables.EchoModules))
	b.WriteString("\n\n# Gradebook Summary Rows\n")
	b.WriteString(renderTable(tables.GradebookSummary))
	b.WriteString("\n\n# Gradebook Module Metrics (per-module)\n")
	b.WriteString(renderTable(tables.GradebookModuleRows))
	b.WriteString("\n\n")
	b.WriteString(payloadRules)
	return b.String()
}

func renderKPIs(kpis domain.KPIs) string {
	lines := make([]string, 0, len(kpis))
	for _, k := range kpis {
		if k.Value == nil {
			continue
		}
		lines = append(lines, "- "+k.Name+": "+formatKPIValue(k.Value))
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

func formatKPIValue(v any) string {
	switch x := v.(type) {
	case float64:
		if x >= 0 && x <= 1 {
			return formatPercent(x)
		}
		return formatFloat(x)
	case float32:
		return formatKPIValue(float64(x))
	case string:
		return x
	default:
		return formatCell(v)
	}
}

func renderTable(t *domain.Table) string {
	if t.Empty() {
		return "(empty)"
	}
	rows := t.Rows
	if len(rows) > maxTableRows {
		rows = rows[:maxTableRows]
	}

	fractional := make([]bool, len(t.Columns))
	for i, col := range t.Columns {
		fractional[i] = isFractionColumn(rows, col)
	}

	grid := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			v := row[col]
			if fractional[i] && v != nil {
				f, _ := domain.AsFloat(v)
				cells[i] = formatPercent(f)
				continue
			}
			cells[i] = formatCell(v)
		}
		grid = append(grid, cells)
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, col int) lipgloss.Style { return cell }).
		Headers(t.Columns...).
		Rows(grid...).
		String()
}

// isFractionColumn applies the percentage heuristic to one column. Only
// numeric columns holding at least one float qualify; integer-only columns
// are counts.
func isFractionColumn(rows []domain.Row, col string) bool {
	var total, inUnit int
	sawFloat := false
	for _, row := range rows {
		v := row[col]
		if v == nil {
			continue
		}
		f, ok := domain.AsFloat(v)
		if !ok {
			return false
		}
		switch v.(type) {
		case float64, float32:
			sawFloat = true
		}
		total++
		if f >= 0 && f <= 1 {
			inUnit++
		}
	}
	if total == 0 || !sawFloat {
		return false
	}
	return float64(inUnit)/float64(total) > fractionShare
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
