package tables

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/yungbote/courselens-backend/internal/domain"
)

// EchoTables are the tables derived from an Echo360 analytics export.
type EchoTables struct {
	Summary  *domain.Table
	Modules  *domain.Table
	Students *domain.Table
}

const (
	ColVideos        = "Videos"
	ColViewers       = "Viewers"
	ColClassSize     = "Class Size"
	ColViewingShare  = "% of Students Viewing"
	ColAvgViewPct    = "Average View %"
	ColTotalViews    = "Total Views"
	ColWatchMinutes  = "Watch Time (min)"
	ColStudentNumber = "Student #"
	ColVideosWatched = "Videos Watched"
)

var (
	echoMediaCols   = []string{"Media Name", "Media", "Media Title", "Video"}
	echoModuleCols  = []string{"Module", "Module Name"}
	echoViewerCols  = []string{"User Name", "Email", "User Email", "Student", "Student Name", "Viewer"}
	echoViewsCols   = []string{"Total Views", "Views"}
	echoPercentCols = []string{"Average View %", "View %", "Percent Viewed", "Average Percent Viewed"}
	echoWatchCols   = []string{"Total Watch Time", "Watch Time", "Total View Time"}
)

type echoView struct {
	media   string
	module  string
	viewer  string
	views   float64
	percent *float64
	seconds float64
}

// BuildEcho aggregates an Echo360 per-viewer export. Media without an
// explicit module are matched to the longest course module name contained in
// the media name, or grouped under Unassigned.
func BuildEcho(r io.Reader, cc *domain.CourseContext) (*EchoTables, error) {
	s, err := readSheet(r)
	if err != nil {
		return nil, fmt.Errorf("echo360: %w", err)
	}
	mediaCol := s.column(echoMediaCols...)
	if mediaCol < 0 {
		return nil, errors.New("echo360: missing media name column")
	}
	viewerCol := s.column(echoViewerCols...)
	if viewerCol < 0 {
		return nil, errors.New("echo360: missing viewer column")
	}
	moduleCol := s.column(echoModuleCols...)
	viewsCol := s.column(echoViewsCols...)
	percentCol := s.column(echoPercentCols...)
	watchCol := s.column(echoWatchCols...)

	matcher := newModuleMatcher(cc)
	views := make([]echoView, 0, len(s.records))
	for i, rec := range s.records {
		media := cell(rec, mediaCol)
		viewer := cell(rec, viewerCol)
		if media == "" || viewer == "" {
			continue
		}
		v := echoView{media: media, viewer: strings.ToLower(viewer), views: 1}
		if m := cell(rec, moduleCol); m != "" {
			v.module = m
		} else {
			v.module = matcher.match(media)
		}
		if raw := cell(rec, viewsCol); raw != "" {
			n, ok := parseNumber(raw)
			if !ok || n < 0 {
				return nil, fmt.Errorf("echo360: row %d: invalid views %q", i+2, raw)
			}
			v.views = n
		}
		if raw := cell(rec, percentCol); raw != "" {
			f, ok := parseFraction(raw)
			if !ok || f < 0 {
				return nil, fmt.Errorf("echo360: row %d: invalid view percent %q", i+2, raw)
			}
			v.percent = &f
		}
		if raw := cell(rec, watchCol); raw != "" {
			secs, ok := parseSeconds(raw)
			if !ok {
				return nil, fmt.Errorf("echo360: row %d: invalid watch time %q", i+2, raw)
			}
			v.seconds = secs
		}
		views = append(views, v)
	}
	if len(views) == 0 {
		return nil, errors.New("echo360: export has no viewing rows")
	}

	var classSize *int
	if cc != nil && cc.StudentCount != nil && *cc.StudentCount > 0 {
		classSize = cc.StudentCount
	}
	return &EchoTables{
		Summary:  echoSummary(views, classSize),
		Modules:  echoModules(views, classSize),
		Students: echoStudents(views),
	}, nil
}

type echoAgg struct {
	media    map[string]struct{}
	viewers  map[string]struct{}
	percents []float64
	views    float64
	seconds  float64
}

func newEchoAgg() *echoAgg {
	return &echoAgg{media: map[string]struct{}{}, viewers: map[string]struct{}{}}
}

func (a *echoAgg) add(v echoView) {
	a.media[v.media] = struct{}{}
	a.viewers[v.viewer] = struct{}{}
	if v.percent != nil {
		a.percents = append(a.percents, *v.percent)
	}
	a.views += v.views
	a.seconds += v.seconds
}

func viewingShare(viewers int, classSize *int, fallback int) any {
	denom := fallback
	if classSize != nil {
		denom = *classSize
	}
	if denom <= 0 {
		return nil
	}
	share := float64(viewers) / float64(denom)
	if share > 1 {
		share = 1
	}
	return round(share, 4)
}

func echoSummary(views []echoView, classSize *int) *domain.Table {
	agg := newEchoAgg()
	for _, v := range views {
		agg.add(v)
	}
	t := domain.NewTable("echo_summary", ColVideos, ColViewers, ColClassSize, ColViewingShare, ColAvgViewPct, ColTotalViews, ColWatchMinutes)
	var size any
	if classSize != nil {
		size = *classSize
	}
	t.Append(domain.Row{
		ColVideos:       len(agg.media),
		ColViewers:      len(agg.viewers),
		ColClassSize:    size,
		ColViewingShare: viewingShare(len(agg.viewers), classSize, len(agg.viewers)),
		ColAvgViewPct:   meanOrNil(agg.percents),
		ColTotalViews:   int(agg.views),
		ColWatchMinutes: round(agg.seconds/60, 1),
	})
	return t
}

func echoModules(views []echoView, classSize *int) *domain.Table {
	allViewers := map[string]struct{}{}
	var order []string
	byModule := map[string]*echoAgg{}
	for _, v := range views {
		allViewers[v.viewer] = struct{}{}
		agg, ok := byModule[v.module]
		if !ok {
			agg = newEchoAgg()
			byModule[v.module] = agg
			order = append(order, v.module)
		}
		agg.add(v)
	}

	t := domain.NewTable("echo_modules", ModuleColumn, ColVideos, ColViewers, ColViewingShare, ColAvgViewPct, ColTotalViews, ColWatchMinutes)
	t.ModuleColumn = ModuleColumn
	for _, m := range order {
		agg := byModule[m]
		t.Append(domain.Row{
			ModuleColumn:    m,
			ColVideos:       len(agg.media),
			ColViewers:      len(agg.viewers),
			ColViewingShare: viewingShare(len(agg.viewers), classSize, len(allViewers)),
			ColAvgViewPct:   meanOrNil(agg.percents),
			ColTotalViews:   int(agg.views),
			ColWatchMinutes: round(agg.seconds/60, 1),
		})
	}
	return t
}

// echoStudents numbers viewers by first appearance; identities never leave
// this function.
func echoStudents(views []echoView) *domain.Table {
	var order []string
	byViewer := map[string]*echoAgg{}
	for _, v := range views {
		agg, ok := byViewer[v.viewer]
		if !ok {
			agg = newEchoAgg()
			byViewer[v.viewer] = agg
			order = append(order, v.viewer)
		}
		agg.add(v)
	}

	t := domain.NewTable("echo_students", ColStudentNumber, ColVideosWatched, ColAvgViewPct, ColTotalViews, ColWatchMinutes)
	for i, viewer := range order {
		agg := byViewer[viewer]
		t.Append(domain.Row{
			ColStudentNumber: i + 1,
			ColVideosWatched: len(agg.media),
			ColAvgViewPct:    meanOrNil(agg.percents),
			ColTotalViews:    int(agg.views),
			ColWatchMinutes:  round(agg.seconds/60, 1),
		})
	}
	return t
}

type moduleMatcher struct {
	names []string // longest first
}

func newModuleMatcher(cc *domain.CourseContext) moduleMatcher {
	var names []string
	if cc != nil {
		for n := range cc.ModuleOrder {
			if strings.TrimSpace(n) != "" {
				names = append(names, n)
			}
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return moduleMatcher{names: names}
}

func (m moduleMatcher) match(media string) string {
	lower := strings.ToLower(media)
	for _, n := range m.names {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n
		}
	}
	return domain.UnassignedModule
}
