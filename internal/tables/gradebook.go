package tables

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yungbote/courselens-backend/internal/domain"
)

// GradebookTables are the tables derived from a Canvas gradebook export.
type GradebookTables struct {
	Gradebook     *domain.Table
	Summary       *domain.Table
	ModuleMetrics *domain.Table
}

const (
	ColMetric       = "Metric"
	ColAssignments  = "Assignments"
	ColAverageScore = "Average Score"
	ColTurnedIn     = "% Turned In"

	MetricAverage          = "Average"
	MetricAverageNonZero   = "Average Excluding Zeros"
	MetricTurnedIn         = "% Turned In"
	pointsPossibleLabel    = "points possible"
	gradebookStudentColumn = "Student"
)

// assignmentHeader matches Canvas assignment headers such as "Essay 1 (12345)".
var assignmentHeader = regexp.MustCompile(`^(.*\S)\s*\((\d+)\)$`)

type assignment struct {
	col    int
	id     string
	title  string
	header string
	points float64
}

// score is one student's result for one assignment. Excused cells are
// skipped entirely; blank cells count as not turned in.
type score struct {
	fraction float64
	present  bool
}

type assignmentStats struct {
	scores  []float64
	nonZero []float64
	turned  int
	counted int
}

func (s assignmentStats) average() any { return meanOrNil(s.scores) }
func (s assignmentStats) averageNonZero() any { return meanOrNil(s.nonZero) }
func (s assignmentStats) turnedInRate() any {
	if s.counted == 0 {
		return nil
	}
	return round(float64(s.turned)/float64(s.counted), 4)
}

// BuildGradebook parses a Canvas gradebook export. Scores are reported as
// fractions of points possible and students are de-identified.
func BuildGradebook(r io.Reader, cc *domain.CourseContext) (*GradebookTables, error) {
	s, err := readSheet(r)
	if err != nil {
		return nil, fmt.Errorf("gradebook: %w", err)
	}
	studentCol := s.column(gradebookStudentColumn)
	if studentCol < 0 {
		return nil, errors.New("gradebook: missing Student column")
	}

	var assignments []assignment
	titles := map[string]int{}
	for i, h := range s.headers {
		m := assignmentHeader.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		assignments = append(assignments, assignment{col: i, id: m[2], title: m[1], header: h})
		titles[m[1]]++
	}
	if len(assignments) == 0 {
		return nil, errors.New("gradebook: no assignment columns found")
	}

	var pointsRow []string
	var students [][]string
	for _, rec := range s.records {
		name := cell(rec, studentCol)
		switch {
		case strings.EqualFold(name, pointsPossibleLabel):
			if pointsRow == nil {
				pointsRow = rec
			}
		case name == "":
			// muted / manual posting marker rows
		case isTestStudent(name):
		default:
			students = append(students, rec)
		}
	}
	if pointsRow == nil {
		return nil, errors.New("gradebook: missing Points Possible row")
	}

	graded := assignments[:0]
	for _, a := range assignments {
		pts, ok := parseNumber(cell(pointsRow, a.col))
		if !ok || pts <= 0 {
			continue
		}
		a.points = pts
		if titles[a.title] > 1 {
			a.title = a.header
		}
		graded = append(graded, a)
	}
	if len(graded) == 0 {
		return nil, errors.New("gradebook: no assignments with points possible")
	}

	stats := make([]assignmentStats, len(graded))
	gradebook := domain.NewTable("gradebook", append([]string{ColStudentNumber}, assignmentTitles(graded)...)...)
	for si, rec := range students {
		row := domain.Row{ColStudentNumber: si + 1}
		for ai, a := range graded {
			sc, excused, err := parseScore(cell(rec, a.col), a.points)
			if err != nil {
				return nil, fmt.Errorf("gradebook: student %d, %s: %w", si+1, a.title, err)
			}
			if excused {
				row[a.title] = nil
				continue
			}
			st := &stats[ai]
			st.counted++
			st.scores = append(st.scores, sc.fraction)
			if sc.present && sc.fraction > 0 {
				st.turned++
				st.nonZero = append(st.nonZero, sc.fraction)
			}
			if sc.present {
				row[a.title] = round(sc.fraction, 4)
			} else {
				row[a.title] = nil
			}
		}
		gradebook.Append(row)
	}

	return &GradebookTables{
		Gradebook:     gradebook,
		Summary:       gradebookSummary(graded, stats),
		ModuleMetrics: gradebookModules(graded, stats, cc),
	}, nil
}

func assignmentTitles(as []assignment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.title
	}
	return out
}

func parseScore(raw string, points float64) (score, bool, error) {
	switch strings.ToUpper(raw) {
	case "EX":
		return score{}, true, nil
	case "", "-", "N/A":
		return score{}, false, nil
	}
	f, ok := parseNumber(raw)
	if !ok {
		return score{}, false, fmt.Errorf("invalid score %q", raw)
	}
	return score{fraction: f / points, present: true}, false, nil
}

func isTestStudent(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "test student" || n == "student, test"
}

func gradebookSummary(as []assignment, stats []assignmentStats) *domain.Table {
	t := domain.NewTable("gradebook_summary", append([]string{ColMetric}, assignmentTitles(as)...)...)
	rows := []struct {
		label string
		value func(assignmentStats) any
	}{
		{MetricAverage, assignmentStats.average},
		{MetricAverageNonZero, assignmentStats.averageNonZero},
		{MetricTurnedIn, assignmentStats.turnedInRate},
	}
	for _, r := range rows {
		row := domain.Row{ColMetric: r.label}
		for i, a := range as {
			row[a.title] = r.value(stats[i])
		}
		t.Append(row)
	}
	return t
}

func gradebookModules(as []assignment, stats []assignmentStats, cc *domain.CourseContext) *domain.Table {
	var order []string
	type agg struct {
		count    int
		averages []float64
		turned   []float64
	}
	byModule := map[string]*agg{}
	for i, a := range as {
		module := assignmentModule(a, cc)
		g, ok := byModule[module]
		if !ok {
			g = &agg{}
			byModule[module] = g
			order = append(order, module)
		}
		g.count++
		if v, ok := stats[i].average().(float64); ok {
			g.averages = append(g.averages, v)
		}
		if v, ok := stats[i].turnedInRate().(float64); ok {
			g.turned = append(g.turned, v)
		}
	}

	t := domain.NewTable("gradebook_module_metrics", ModuleColumn, ColAssignments, ColAverageScore, ColTurnedIn)
	t.ModuleColumn = ModuleColumn
	for _, m := range order {
		g := byModule[m]
		t.Append(domain.Row{
			ModuleColumn:    m,
			ColAssignments:  g.count,
			ColAverageScore: meanOrNil(g.averages),
			ColTurnedIn:     meanOrNil(g.turned),
		})
	}
	return t
}

func assignmentModule(a assignment, cc *domain.CourseContext) string {
	if cc == nil {
		return domain.UnassignedModule
	}
	if m, ok := cc.AssignmentModules[a.id]; ok {
		return m
	}
	title := a.title
	if mm := assignmentHeader.FindStringSubmatch(title); mm != nil {
		title = mm[1]
	}
	if m, ok := cc.AssignmentModules[title]; ok {
		return m
	}
	return domain.UnassignedModule
}
