package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/courselens-backend/internal/domain"
)

func moduleTable(rows ...domain.Row) *domain.Table {
	t := domain.NewTable("modules", "Module", "Views")
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func modules(t *domain.Table) []any {
	return t.Column("Module")
}

func TestByCourseOrderSortsByPosition(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "Week 3", "Views": 3},
		domain.Row{"Module": "Week 1", "Views": 1},
		domain.Row{"Module": "Week 2", "Views": 2},
	)
	order := map[string]int{"Week 1": 1, "Week 2": 2, "Week 3": 3}

	out := ByCourseOrder(in, "Module", order)

	if diff := cmp.Diff([]any{"Week 1", "Week 2", "Week 3"}, modules(out)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"Week 3", "Week 1", "Week 2"}, modules(in)); diff != "" {
		t.Fatalf("input was mutated (-want +got):\n%s", diff)
	}
}

func TestByCourseOrderIsPermutation(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "B", "Views": 1},
		domain.Row{"Module": "Z", "Views": 2},
		domain.Row{"Module": "A", "Views": 3},
		domain.Row{"Module": nil, "Views": 4},
		domain.Row{"Module": "B", "Views": 5},
	)
	out := ByCourseOrder(in, "Module", map[string]int{"A": 1, "B": 2})

	if out.Len() != in.Len() {
		t.Fatalf("len=%d want %d", out.Len(), in.Len())
	}
	if diff := cmp.Diff(in.Columns, out.Columns); diff != "" {
		t.Fatalf("columns changed:\n%s", diff)
	}
	seen := map[int]domain.Row{}
	for _, r := range out.Rows {
		seen[r["Views"].(int)] = r
	}
	for _, r := range in.Rows {
		if diff := cmp.Diff(r, seen[r["Views"].(int)]); diff != "" {
			t.Fatalf("row changed:\n%s", diff)
		}
	}
}

func TestByCourseOrderUnknownModulesGoLastByName(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "Extra", "Views": 1},
		domain.Row{"Module": "Week 2", "Views": 2},
		domain.Row{"Module": "Bonus", "Views": 3},
		domain.Row{"Module": "Week 1", "Views": 4},
		domain.Row{"Module": "Bonus", "Views": 5},
	)
	out := ByCourseOrder(in, "Module", map[string]int{"Week 1": 1, "Week 2": 2})

	want := []any{4, 2, 3, 5, 1}
	if diff := cmp.Diff(want, out.Column("Views")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestByCourseOrderUnknownSameNameKeepsInputOrder(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "X", "Views": 1},
		domain.Row{"Module": "Week 1", "Views": 2},
		domain.Row{"Module": "X", "Views": 3},
		domain.Row{"Module": "X", "Views": 4},
	)
	out := ByCourseOrder(in, "Module", map[string]int{"Week 1": 1})
	if diff := cmp.Diff([]any{2, 1, 3, 4}, out.Column("Views")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestByCourseOrderUnknownNamesSortLexically(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "Zeta", "Views": 1},
		domain.Row{"Module": "Week 1", "Views": 2},
		domain.Row{"Module": "Alpha", "Views": 3},
	)
	out := ByCourseOrder(in, "Module", map[string]int{"Week 1": 1})
	if diff := cmp.Diff([]any{"Week 1", "Alpha", "Zeta"}, out.Column("Module")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestByCourseOrderTieOnPositionBreaksByName(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "Lab B", "Views": 1},
		domain.Row{"Module": "Lab A", "Views": 2},
		domain.Row{"Module": "Lab B", "Views": 3},
	)
	out := ByCourseOrder(in, "Module", map[string]int{"Lab A": 4, "Lab B": 4})
	if diff := cmp.Diff([]any{2, 1, 3}, out.Column("Views")); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildLookupFirstOccurrenceWins(t *testing.T) {
	lookup := BuildLookup([]Entry{
		{Name: "Week 1", Position: 3},
		{Name: "Week 2", Position: 5},
		{Name: "Week 1", Position: 7},
	})
	if lookup["Week 1"] != 3 {
		t.Fatalf("Week 1 position=%d want 3", lookup["Week 1"])
	}

	in := moduleTable(
		domain.Row{"Module": "Week 2", "Views": 1},
		domain.Row{"Module": "Week 1", "Views": 2},
	)
	out := ByCourseOrder(in, "Module", lookup)
	if diff := cmp.Diff([]any{"Week 1", "Week 2"}, modules(out)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestByCourseOrderIdentityCases(t *testing.T) {
	in := moduleTable(
		domain.Row{"Module": "Week 2", "Views": 1},
		domain.Row{"Module": "Week 1", "Views": 2},
	)
	order := map[string]int{"Week 1": 1, "Week 2": 2}

	if got := ByCourseOrder(in, "Module", nil); got != in {
		t.Fatalf("empty order should return input")
	}
	if got := ByCourseOrder(in, "module", order); got != in {
		t.Fatalf("missing column should return input")
	}
	empty := domain.NewTable("empty", "Module")
	if got := ByCourseOrder(empty, "Module", order); got != empty {
		t.Fatalf("empty table should return input")
	}
	if got := ByCourseOrder(nil, "Module", order); got != nil {
		t.Fatalf("nil table should stay nil")
	}
}
