package narrative

import (
	"strings"

	"github.com/yungbote/courselens-backend/internal/domain"
)

var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	titles := make([]string, 0, len(domain.CardOrder))
	ids := make([]string, 0, len(domain.CardOrder))
	for _, c := range domain.CardOrder {
		titles = append(titles, `"`+c.Title+`"`)
		ids = append(ids, string(c.ID)+" ("+c.Title+")")
	}

	var b strings.Builder
	b.WriteString(`You are a learning analytics assistant for instructors of online, asynchronous courses.
Describe the course data below in concise plain English.

Content rules:
- Be specific. Cite module names and metrics using percentages or counts.
- Point out trends and outliers.
- Describe the data only. Do not make teaching recommendations.
- Stay under roughly 750 words.
- Always produce these sections, in this order: `)
	b.WriteString(strings.Join(titles, ", "))
	b.WriteString(`.

Output contract:
Respond with a single JSON object and nothing else (no Markdown fences, no prose):

{
  "version": "`)
	b.WriteString(domain.ReportVersion)
	b.WriteString(`",
  "cards": [
    {
      "id": "general_overview",
      "title": "General Overview",
      "summary": "one to three plain sentences",
      "bullets": ["two to six short plain-text bullets"],
      "metrics": [{"label": "...", "value": "...", "tone": "good|warn|bad|neutral"}]
    }
  ]
}

JSON rules:
- "cards" holds exactly five objects with these ids and titles, in order: `)
	b.WriteString(strings.Join(ids, "; "))
	b.WriteString(`.
- Every card has id, title, summary, bullets and metrics.
- bullets: 2 to 6 strings; use [] only when nothing meaningful can be said.
- metrics: 0 to 4 objects; leave it empty rather than inventing numbers.
- tone is one of good, warn, bad, neutral.
- No extra keys and no trailing commas.
`)
	return b.String()
}

const payloadRules = `Additional analysis rules:
- Identify overall trends and data points that deserve a closer look.
- Do not walk through every module one by one; call out what stands out.
- Put a short wrap-up for each section in that card's summary field.
- In "Notable Trends", compare the overall patterns of the Gradebook Module Metrics against the Echo Module Metrics.`
