package narrative

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/courselens-backend/internal/domain"
)

const (
	noteNonObject     = "AI analysis returned an invalid structure (non-object)."
	noteNoCards       = "AI analysis returned no 'cards' array."
	noteUnparseable   = "AI analysis could not be parsed as JSON."
	noteMissingReport = "No analysis returned for this section."

	maxRawRunes = 5000
)

// fieldState classifies one field of an upstream object before normalization.
type fieldState int

const (
	fieldAbsent fieldState = iota
	fieldInvalid
	fieldValid
)

// BlankReport returns the five fixed cards with note as every summary.
func BlankReport(note string) domain.AnalysisReport {
	cards := make([]domain.AnalysisCard, 0, len(domain.CardOrder))
	for _, cs := range domain.CardOrder {
		cards = append(cards, domain.AnalysisCard{
			ID:      cs.ID,
			Title:   cs.Title,
			Summary: note,
			Bullets: []string{},
			Metrics: []domain.Metric{},
		})
	}
	return domain.AnalysisReport{Version: domain.ReportVersion, Cards: cards}
}

// NormalizeText decodes raw model output and normalizes it. Output that is
// not JSON yields the blank report with the raw text kept as the first
// card's only bullet.
func NormalizeText(raw string) domain.AnalysisReport {
	raw = strings.TrimSpace(raw)
	var obj any
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &obj); err != nil {
		report := BlankReport(noteUnparseable)
		if raw != "" {
			report.Cards[0].Bullets = []string{truncateRunes(raw, maxRawRunes)}
		}
		return report
	}
	return Normalize(obj)
}

// Normalize maps any decoded JSON value onto a valid five card report.
func Normalize(obj any) domain.AnalysisReport {
	root, ok := obj.(map[string]any)
	if !ok {
		return BlankReport(noteNonObject)
	}
	rawCards, ok := root["cards"].([]any)
	if !ok {
		return BlankReport(noteNoCards)
	}

	byID := make(map[string]map[string]any, len(rawCards))
	for _, rc := range rawCards {
		card, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		id, state := stringField(card, "id")
		if state != fieldValid {
			continue
		}
		byID[id] = card
	}

	cards := make([]domain.AnalysisCard, 0, len(domain.CardOrder))
	for _, cs := range domain.CardOrder {
		cards = append(cards, normalizeCard(cs, byID[string(cs.ID)]))
	}
	return domain.AnalysisReport{Version: domain.ReportVersion, Cards: cards}
}

func normalizeCard(cs domain.CardSpec, src map[string]any) domain.AnalysisCard {
	card := domain.AnalysisCard{
		ID:      cs.ID,
		Title:   cs.Title,
		Summary: noteMissingReport,
		Bullets: []string{},
		Metrics: []domain.Metric{},
	}
	if src == nil {
		return card
	}

	if summary, state := stringField(src, "summary"); state == fieldValid {
		if s := strings.TrimSpace(summary); s != "" {
			card.Summary = s
		}
	}

	if bullets, state := stringListField(src, "bullets"); state == fieldValid {
		for _, b := range bullets {
			if b = strings.TrimSpace(b); b == "" {
				continue
			}
			card.Bullets = append(card.Bullets, b)
			if len(card.Bullets) == domain.MaxCardBullets {
				break
			}
		}
	}

	if entries, ok := src["metrics"].([]any); ok {
		for _, e := range entries {
			m, ok := normalizeMetric(e)
			if !ok {
				continue
			}
			card.Metrics = append(card.Metrics, m)
			if len(card.Metrics) == domain.MaxCardMetrics {
				break
			}
		}
	}
	return card
}

func normalizeMetric(v any) (domain.Metric, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return domain.Metric{}, false
	}
	label, ls := stringField(obj, "label")
	value, vs := stringField(obj, "value")
	if ls != fieldValid || vs != fieldValid {
		return domain.Metric{}, false
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.Metric{}, false
	}

	tone := domain.ToneNeutral
	if t, state := stringField(obj, "tone"); state == fieldValid && domain.Tone(t).Valid() {
		tone = domain.Tone(t)
	}
	return domain.Metric{Label: label, Value: strings.TrimSpace(value), Tone: tone}, true
}

func stringField(obj map[string]any, key string) (string, fieldState) {
	v, ok := obj[key]
	if !ok {
		return "", fieldAbsent
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldInvalid
	}
	return s, fieldValid
}

// stringListField is valid only when every element is a string.
func stringListField(obj map[string]any, key string) ([]string, fieldState) {
	v, ok := obj[key]
	if !ok {
		return nil, fieldAbsent
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fieldInvalid
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fieldInvalid
		}
		out = append(out, s)
	}
	return out, fieldValid
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
