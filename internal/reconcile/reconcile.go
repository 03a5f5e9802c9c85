// Package reconcile reorders module-keyed tables to follow LMS module order.
package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/courselens-backend/internal/domain"
)

// unknownPosition sorts after every real LMS position.
const unknownPosition = math.MaxInt

// Entry is one (module, position) pair as reported by the LMS, in the order
// the LMS listed it.
type Entry struct {
	Name     string
	Position int
}

// BuildLookup records each module name's position on first sight. Later
// entries for an already seen name are ignored.
func BuildLookup(entries []Entry) map[string]int {
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		if _, seen := out[e.Name]; seen {
			continue
		}
		out[e.Name] = e.Position
	}
	return out
}

// ByCourseOrder returns table with its rows stably sorted by course position
// of the module named in moduleColumn, then by module name. Rows whose module
// is not in order share one position after every known module, so they too
// are grouped by name; rows that tie on both keep their input order. The input
// table is returned unchanged when it is empty, when order is empty, or when
// moduleColumn is not one of its columns.
func ByCourseOrder(table *domain.Table, moduleColumn string, order map[string]int) *domain.Table {
	if table.Empty() || len(order) == 0 || !table.HasColumn(moduleColumn) {
		return table
	}

	type keyed struct {
		row  domain.Row
		pos  int
		name string
	}
	rows := make([]keyed, len(table.Rows))
	for i, r := range table.Rows {
		name := moduleName(r[moduleColumn])
		pos, ok := lookup(order, r[moduleColumn])
		if !ok {
			pos = unknownPosition
		}
		rows[i] = keyed{row: r, pos: pos, name: name}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].pos != rows[j].pos {
			return rows[i].pos < rows[j].pos
		}
		return rows[i].name < rows[j].name
	})

	out := make([]domain.Row, len(rows))
	for i, k := range rows {
		out[i] = k.row
	}
	return table.WithRows(out)
}

func lookup(order map[string]int, v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	pos, ok := order[s]
	return pos, ok
}

func moduleName(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
