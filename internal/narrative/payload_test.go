package narrative

import (
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/courselens-backend/internal/domain"
)

func TestRenderKPIs(t *testing.T) {
	got := renderKPIs(domain.KPIs{
		{Name: "completion_rate", Value: 0.82},
		{Name: "Students", Value: 42},
		{Name: "Missing", Value: nil},
		{Name: "Lowest Scoring Module", Value: "Week 3"},
		{Name: "Average Score", Value: 87.25},
	})
	want := strings.Join([]string{
		"- completion_rate: 82.0%",
		"- Students: 42",
		"- Lowest Scoring Module: Week 3",
		"- Average Score: 87.25",
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := renderKPIs(nil); got != "(none)" {
		t.Fatalf("empty=%q", got)
	}
}

func TestFractionColumnHeuristic(t *testing.T) {
	tbl := domain.NewTable("t", "Module", "Frac", "Raw")
	fr := []any{0.1, 0.2, 0.9, 0.95, 5}
	raw := []any{0.1, 5.0, 6.0, 7.0, 8.0}
	for i := range fr {
		tbl.Append(domain.Row{"Module": fmt.Sprintf("Week %d", i+1), "Frac": fr[i], "Raw": raw[i]})
	}
	if !isFractionColumn(tbl.Rows, "Frac") {
		t.Fatalf("Frac should be fractional")
	}
	if isFractionColumn(tbl.Rows, "Raw") {
		t.Fatalf("Raw should not be fractional")
	}
	if isFractionColumn(tbl.Rows, "Module") {
		t.Fatalf("text column should not be fractional")
	}

	out := renderTable(tbl)
	for _, want := range []string{"10.0%", "95.0%", "500.0%", "Week 5", "0.1", "8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "800.0%") {
		t.Fatalf("raw column rendered as percent:\n%s", out)
	}
}

func TestIntegerColumnsAreCounts(t *testing.T) {
	tbl := domain.NewTable("t", "Videos")
	for _, v := range []int{1, 0, 1, 2} {
		tbl.Append(domain.Row{"Videos": v})
	}
	if isFractionColumn(tbl.Rows, "Videos") {
		t.Fatalf("integer column treated as fractional")
	}
}

func TestRenderTableCapsRows(t *testing.T) {
	tbl := domain.NewTable("t", "Module")
	for i := 0; i < 40; i++ {
		tbl.Append(domain.Row{"Module": fmt.Sprintf("row-%02d", i)})
	}
	out := renderTable(tbl)
	if !strings.Contains(out, "row-29") || strings.Contains(out, "row-30") {
		t.Fatalf("row cap not applied:\n%s", out)
	}
	if got := renderTable(domain.NewTable("e", "A")); got != "(empty)" {
		t.Fatalf("empty=%q", got)
	}
	if got := renderTable(nil); got != "(empty)" {
		t.Fatalf("nil=%q", got)
	}
}

func TestBuildPayloadSections(t *testing.T) {
	p := BuildPayload(domain.KPIs{{Name: "completion_rate", Value: 0.82}}, Tables{})
	for _, want := range []string{
		"# KPIs\n- completion_rate: 82.0%",
		"# Echo Module Metrics (per-module)\n(empty)",
		"# Gradebook Summary Rows\n(empty)",
		"# Gradebook Module Metrics (per-module)\n(empty)",
		"Notable Trends",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("payload missing %q:\n%s", want, p)
		}
	}
	if p != BuildPayload(domain.KPIs{{Name: "completion_rate", Value: 0.82}}, Tables{}) {
		t.Fatalf("payload not deterministic")
	}
}
