// Package kpi derives the headline course indicators from the built tables.
package kpi

import (
	"fmt"
	"math"

	"github.com/yungbote/courselens-backend/internal/domain"
	"github.com/yungbote/courselens-backend/internal/tables"
)

const (
	Students               = "Students"
	Videos                 = "Videos"
	Modules                = "Modules"
	AverageViewPercent     = "Average View %"
	StudentViewingRate     = "Student Viewing Rate"
	AverageAssignmentScore = "Average Assignment Score"
	SubmissionRate         = "Submission Rate"
	Assignments            = "Assignments"
	LowestScoringModule    = "Lowest Scoring Module"
)

// Compute returns the indicators in display order. Indicators whose inputs
// are missing are nil; tables that contradict their own shape are an error.
func Compute(echo *tables.EchoTables, grades *tables.GradebookTables, studentCount *int) (domain.KPIs, error) {
	var echoSummary domain.Row
	if echo != nil && !echo.Summary.Empty() {
		if echo.Summary.Len() != 1 {
			return nil, fmt.Errorf("echo summary has %d rows, want 1", echo.Summary.Len())
		}
		echoSummary = echo.Summary.Rows[0]
	}

	students, err := studentTotal(studentCount, grades, echoSummary)
	if err != nil {
		return nil, err
	}

	out := domain.KPIs{{Name: Students, Value: intOrNil(students)}}

	videos, err := intField(echoSummary, tables.ColVideos)
	if err != nil {
		return nil, err
	}
	out = append(out, domain.KPI{Name: Videos, Value: intOrNil(videos)})

	var modules *int
	if echo != nil && echo.Modules != nil {
		n := 0
		for _, m := range echo.Modules.Column(tables.ModuleColumn) {
			if m != domain.UnassignedModule {
				n++
			}
		}
		modules = &n
	}
	out = append(out, domain.KPI{Name: Modules, Value: intOrNil(modules)})

	viewPct, err := floatField(echoSummary, tables.ColAvgViewPct)
	if err != nil {
		return nil, err
	}
	out = append(out, domain.KPI{Name: AverageViewPercent, Value: floatOrNil(viewPct)})

	viewers, err := intField(echoSummary, tables.ColViewers)
	if err != nil {
		return nil, err
	}
	var viewingRate *float64
	if viewers != nil && students != nil && *students > 0 {
		r := math.Min(1, float64(*viewers)/float64(*students))
		viewingRate = &r
	}
	out = append(out, domain.KPI{Name: StudentViewingRate, Value: floatOrNil(viewingRate)})

	avgScore, submission, assignments, err := gradeIndicators(grades)
	if err != nil {
		return nil, err
	}
	out = append(out,
		domain.KPI{Name: AverageAssignmentScore, Value: floatOrNil(avgScore)},
		domain.KPI{Name: SubmissionRate, Value: floatOrNil(submission)},
		domain.KPI{Name: Assignments, Value: intOrNil(assignments)},
	)

	lowest, err := lowestModule(grades)
	if err != nil {
		return nil, err
	}
	var lowestValue any
	if lowest != "" {
		lowestValue = lowest
	}
	out = append(out, domain.KPI{Name: LowestScoringModule, Value: lowestValue})
	return out, nil
}

func studentTotal(studentCount *int, grades *tables.GradebookTables, echoSummary domain.Row) (*int, error) {
	if studentCount != nil {
		if *studentCount < 0 {
			return nil, fmt.Errorf("negative student count %d", *studentCount)
		}
		return studentCount, nil
	}
	if grades != nil && grades.Gradebook != nil && grades.Gradebook.Len() > 0 {
		n := grades.Gradebook.Len()
		return &n, nil
	}
	return intField(echoSummary, tables.ColViewers)
}

// gradeIndicators averages the per-assignment summary rows.
func gradeIndicators(grades *tables.GradebookTables) (avg, submission *float64, assignments *int, err error) {
	if grades == nil || grades.Summary.Empty() {
		return nil, nil, nil, nil
	}
	n := len(grades.Summary.Columns) - 1
	assignments = &n

	for _, row := range grades.Summary.Rows {
		var target **float64
		switch row[tables.ColMetric] {
		case tables.MetricAverage:
			target = &avg
		case tables.MetricTurnedIn:
			target = &submission
		default:
			continue
		}
		var vals []float64
		for _, col := range grades.Summary.Columns[1:] {
			v := row[col]
			if v == nil {
				continue
			}
			f, ok := domain.AsFloat(v)
			if !ok {
				return nil, nil, nil, fmt.Errorf("gradebook summary %v/%s is not numeric", row[tables.ColMetric], col)
			}
			vals = append(vals, f)
		}
		if len(vals) > 0 {
			m := roundTo(meanOf(vals), 4)
			*target = &m
		}
	}
	return avg, submission, assignments, nil
}

func lowestModule(grades *tables.GradebookTables) (string, error) {
	if grades == nil || grades.ModuleMetrics.Empty() {
		return "", nil
	}
	best := ""
	bestScore := math.Inf(1)
	for _, row := range grades.ModuleMetrics.Rows {
		v := row[tables.ColAverageScore]
		if v == nil {
			continue
		}
		f, ok := domain.AsFloat(v)
		if !ok {
			return "", fmt.Errorf("module average score %v is not numeric", v)
		}
		name, _ := row[tables.ModuleColumn].(string)
		if f < bestScore {
			best, bestScore = name, f
		}
	}
	return best, nil
}

func intField(row domain.Row, col string) (*int, error) {
	if row == nil || row[col] == nil {
		return nil, nil
	}
	switch v := row[col].(type) {
	case int:
		return &v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%s is not a whole number: %v", col, v)
		}
		n := int(v)
		return &n, nil
	default:
		return nil, fmt.Errorf("%s has unexpected type %T", col, v)
	}
}

func floatField(row domain.Row, col string) (*float64, error) {
	if row == nil || row[col] == nil {
		return nil, nil
	}
	f, ok := domain.AsFloat(row[col])
	if !ok {
		return nil, fmt.Errorf("%s has unexpected type %T", col, row[col])
	}
	return &f, nil
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// Synthesizer adapts Compute to a collaborator value.
type Synthesizer struct{}

func (Synthesizer) Compute(echo *tables.EchoTables, grades *tables.GradebookTables, studentCount *int) (domain.KPIs, error) {
	return Compute(echo, grades, studentCount)
}
