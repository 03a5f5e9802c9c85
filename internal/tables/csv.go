// Package tables builds the analysis tables from uploaded Echo360 and Canvas
// gradebook exports.
package tables

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/courselens-backend/internal/domain"
)

// ModuleColumn names the module key column of every module-level table.
const ModuleColumn = "Module"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sheet is a parsed CSV export: cleaned headers plus raw records padded to
// the header width.
type sheet struct {
	headers []string
	index   map[string]int
	records [][]string
}

func readSheet(r io.Reader) (*sheet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("export is empty")
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	s := &sheet{headers: make([]string, len(headers)), index: make(map[string]int, len(headers))}
	for i, h := range headers {
		h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
		s.headers[i] = h
		key := strings.ToLower(h)
		if _, dup := s.index[key]; !dup && key != "" {
			s.index[key] = i
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if blankRecord(rec) {
			continue
		}
		for len(rec) < len(headers) {
			rec = append(rec, "")
		}
		s.records = append(s.records, rec)
	}
	return s, nil
}

// column returns the index of the first header matching any alias, compared
// case-insensitively, or -1.
func (s *sheet) column(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := s.index[strings.ToLower(a)]; ok {
			return i
		}
	}
	return -1
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseNumber accepts plain numbers with optional thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseFraction reads "85%", "85" or "0.85" as 0.85.
func parseFraction(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		f, ok := parseNumber(strings.TrimSuffix(s, "%"))
		return f / 100, ok
	}
	f, ok := parseNumber(s)
	if !ok {
		return 0, false
	}
	if f > 1 {
		f /= 100
	}
	return f, true
}

// parseSeconds reads a plain seconds count or an H:MM:SS / MM:SS duration.
func parseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return parseNumber(s)
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0.0
	for _, p := range parts {
		f, ok := parseNumber(p)
		if !ok || f < 0 {
			return 0, false
		}
		total = total*60 + f
	}
	return total, true
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// meanOrNil returns the mean as a table value, nil when xs is empty.
func meanOrNil(xs []float64) any {
	m, ok := mean(xs)
	if !ok {
		return nil
	}
	return round(m, 4)
}

// Builder exposes the export parsers behind one value for callers that take
// them as collaborators.
type Builder struct{}

func (Builder) BuildEcho(r io.Reader, cc *domain.CourseContext) (*EchoTables, error) {
	return BuildEcho(r, cc)
}

func (Builder) BuildGradebook(r io.Reader, cc *domain.CourseContext) (*GradebookTables, error) {
	return BuildGradebook(r, cc)
}
