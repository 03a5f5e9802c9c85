// Package mock is an offline engine for local runs and tests. It answers every
// request with a well-formed five card report derived from the prompt.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/yungbote/courselens-backend/internal/domain"
	"github.com/yungbote/courselens-backend/internal/inference/engine"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return "mock" }

func (e *Engine) GenerateText(ctx context.Context, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_ = opts

	var user string
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			user = messages[i].Content
			break
		}
	}
	h := sha256.Sum256([]byte(user))
	digest := hex.EncodeToString(h[:4])

	kpiLines := kpiLines(user)
	cards := make([]map[string]any, 0, len(domain.CardOrder))
	for _, cs := range domain.CardOrder {
		card := map[string]any{
			"id":      string(cs.ID),
			"title":   cs.Title,
			"summary": "Offline analysis (" + digest + ") for " + strings.ToLower(cs.Title) + ".",
			"bullets": []string{},
			"metrics": []map[string]any{},
		}
		if cs.ID == domain.CardGeneralOverview {
			card["bullets"] = kpiLines
			metrics := []map[string]any{}
			for _, line := range kpiLines {
				name, value, ok := strings.Cut(line, ": ")
				if !ok {
					continue
				}
				metrics = append(metrics, map[string]any{"label": name, "value": value, "tone": "neutral"})
				if len(metrics) == domain.MaxCardMetrics {
					break
				}
			}
			card["metrics"] = metrics
		}
		cards = append(cards, card)
	}
	b, err := json.Marshal(map[string]any{"version": domain.ReportVersion, "cards": cards})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// kpiLines picks the "- name: value" lines out of the KPI section.
func kpiLines(prompt string) []string {
	var out []string
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") || !strings.Contains(line, ": ") {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
		if len(out) == domain.MaxCardBullets {
			break
		}
	}
	return out
}
