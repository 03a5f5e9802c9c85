package tables

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/courselens-backend/internal/domain"
)

func intPtr(v int) *int { return &v }

func testCourse() *domain.CourseContext {
	return &domain.CourseContext{
		CourseID:    "101",
		ModuleOrder: map[string]int{"Week 1": 1, "Week 2": 2, "Week 10": 10},
		AssignmentModules: map[string]string{
			"11":     "Week 1",
			"12":     "Week 2",
			"Quiz 1": "Week 1",
		},
		StudentCount: intPtr(4),
	}
}

const echoCSV = "\ufeffMedia Name,User Name,Total Views,Average View %,Total Watch Time\n" +
	"Week 1 Lecture,ana@example.edu,2,80%,0:10:00\n" +
	"Week 1 Lecture,ben@example.edu,1,60%,300\n" +
	"Week 10 Review,ana@example.edu,1,100%,0:05:00\n" +
	"Orientation,cy@example.edu,1,50%,60\n" +
	",,,,\n"

func TestBuildEcho(t *testing.T) {
	got, err := BuildEcho(strings.NewReader(echoCSV), testCourse())
	require.NoError(t, err)

	require.Equal(t, []string{ModuleColumn, ColVideos, ColViewers, ColViewingShare, ColAvgViewPct, ColTotalViews, ColWatchMinutes}, got.Modules.Columns)
	require.Equal(t, ModuleColumn, got.Modules.ModuleColumn)

	modules := got.Modules.Column(ModuleColumn)
	if diff := cmp.Diff([]any{"Week 1", "Week 10", domain.UnassignedModule}, modules); diff != "" {
		t.Fatalf("modules (-want +got):\n%s", diff)
	}

	week1 := got.Modules.Rows[0]
	require.Equal(t, 1, week1[ColVideos])
	require.Equal(t, 2, week1[ColViewers])
	require.Equal(t, 0.5, week1[ColViewingShare])
	require.Equal(t, 0.7, week1[ColAvgViewPct])
	require.Equal(t, 3, week1[ColTotalViews])
	require.Equal(t, 15.0, week1[ColWatchMinutes])

	summary := got.Summary.Rows[0]
	require.Equal(t, 3, summary[ColVideos])
	require.Equal(t, 3, summary[ColViewers])
	require.Equal(t, 4, summary[ColClassSize])
	require.Equal(t, 0.75, summary[ColViewingShare])
	require.Equal(t, 5, summary[ColTotalViews])

	require.Equal(t, 3, got.Students.Len())
	require.Equal(t, []any{1, 2, 3}, got.Students.Column(ColStudentNumber))
	require.False(t, got.Students.HasColumn("User Name"))
}

func TestBuildEchoExplicitModuleColumn(t *testing.T) {
	csv := "Media,Module,Email\nClip A,Week 2,a@x\nClip B,,b@x\n"
	got, err := BuildEcho(strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Equal(t, []any{"Week 2", domain.UnassignedModule}, got.Modules.Column(ModuleColumn))
	// Without a class size the share is relative to everyone who watched.
	require.Equal(t, 0.5, got.Modules.Rows[0][ColViewingShare])
	require.Nil(t, got.Summary.Rows[0][ColClassSize])
}

func TestBuildEchoErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"no media":     "User Name,Views\na,1\n",
		"no viewer":    "Media Name,Views\nx,1\n",
		"bad views":    "Media Name,User Name,Total Views\nx,a,lots\n",
		"bad watch":    "Media Name,User Name,Total Watch Time\nx,a,1:2:3:4\n",
		"only headers": "Media Name,User Name\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildEcho(strings.NewReader(in), nil)
			require.Error(t, err)
		})
	}
}

const gradebookCSV = `Student,ID,SIS User ID,SIS Login ID,Section,Essay 1 (11),Essay 2 (12),Quiz 1 (13),Practice (14),Current Score,Final Score
    Points Possible,,,,,10,20,5,0,(read only),(read only)
,,,,,Manual Posting,,,,,
"Doe, Ana",1,s1,ana,A,10,10,EX,1,90,90
"Roe, Ben",2,s2,ben,A,5,0,5,,70,70
"Poe, Cy",3,s3,cy,A,,20,2.5,,50,50
"Student, Test",4,,,A,10,20,5,,100,100
`

func TestBuildGradebook(t *testing.T) {
	got, err := BuildGradebook(strings.NewReader(gradebookCSV), testCourse())
	require.NoError(t, err)

	require.Equal(t, []string{ColStudentNumber, "Essay 1", "Essay 2", "Quiz 1"}, got.Gradebook.Columns)
	require.Equal(t, 3, got.Gradebook.Len())
	require.Equal(t, 1.0, got.Gradebook.Rows[0]["Essay 1"])
	require.Nil(t, got.Gradebook.Rows[0]["Quiz 1"])
	require.Nil(t, got.Gradebook.Rows[2]["Essay 1"])

	require.Equal(t, []any{MetricAverage, MetricAverageNonZero, MetricTurnedIn}, got.Summary.Column(ColMetric))
	avg := got.Summary.Rows[0]
	require.Equal(t, 0.5, avg["Essay 1"])
	require.Equal(t, round((0.5+0+1)/3, 4), avg["Essay 2"])
	require.Equal(t, 0.75, avg["Quiz 1"])
	nonZero := got.Summary.Rows[1]
	require.Equal(t, 0.75, nonZero["Essay 1"])
	require.Equal(t, 0.75, nonZero["Essay 2"])
	turned := got.Summary.Rows[2]
	require.Equal(t, round(2.0/3, 4), turned["Essay 1"])
	require.Equal(t, 1.0, turned["Quiz 1"])

	require.Equal(t, []any{"Week 1", "Week 2"}, got.ModuleMetrics.Column(ModuleColumn))
	require.Equal(t, 2, got.ModuleMetrics.Rows[0][ColAssignments])
	require.Equal(t, 1, got.ModuleMetrics.Rows[1][ColAssignments])
	require.Equal(t, ModuleColumn, got.ModuleMetrics.ModuleColumn)
}

func TestBuildGradebookUnassigned(t *testing.T) {
	got, err := BuildGradebook(strings.NewReader(gradebookCSV), nil)
	require.NoError(t, err)
	require.Equal(t, []any{domain.UnassignedModule}, got.ModuleMetrics.Column(ModuleColumn))
	require.Equal(t, 3, got.ModuleMetrics.Rows[0][ColAssignments])
}

func TestBuildGradebookErrors(t *testing.T) {
	cases := map[string]string{
		"no student column": "Name,Essay (1)\nPoints Possible,10\n",
		"no assignments":    "Student,ID\nPoints Possible,\nA,1\n",
		"no points row":     "Student,Essay (1)\nA,5\n",
		"bad score":         "Student,Essay (1)\nPoints Possible,10\nA,abc\n",
		"zero points":       "Student,Essay (1)\nPoints Possible,0\nA,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildGradebook(strings.NewReader(in), nil)
			require.Error(t, err)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	f, ok := parseFraction("85%")
	require.True(t, ok)
	require.InDelta(t, 0.85, f, 1e-9)
	f, ok = parseFraction("85")
	require.True(t, ok)
	require.InDelta(t, 0.85, f, 1e-9)
	f, ok = parseFraction("0.4")
	require.True(t, ok)
	require.InDelta(t, 0.4, f, 1e-9)

	secs, ok := parseSeconds("1:02:03")
	require.True(t, ok)
	require.Equal(t, 3723.0, secs)
	secs, ok = parseSeconds("1,200")
	require.True(t, ok)
	require.Equal(t, 1200.0, secs)
	_, ok = parseSeconds("x:1")
	require.False(t, ok)
}
