package domain

const ReportVersion = "1.0"

type CardID string

const (
	CardGeneralOverview       CardID = "general_overview"
	CardEcho360Engagement     CardID = "echo360_engagement"
	CardGradebookTrends       CardID = "gradebook_trends"
	CardNotableTrends         CardID = "notable_trends"
	CardFurtherInvestigations CardID = "further_investigations"
)

// CardSpec pairs a card id with its fixed title.
type CardSpec struct {
	ID    CardID
	Title string
}

// CardOrder is the fixed order and titling of report cards.
var CardOrder = [5]CardSpec{
	{CardGeneralOverview, "General Overview"},
	{CardEcho360Engagement, "Echo360 Engagement"},
	{CardGradebookTrends, "Gradebook Trends"},
	{CardNotableTrends, "Notable Trends"},
	{CardFurtherInvestigations, "Further Investigations"},
}

type Tone string

const (
	ToneGood    Tone = "good"
	ToneWarn    Tone = "warn"
	ToneBad     Tone = "bad"
	ToneNeutral Tone = "neutral"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneGood, ToneWarn, ToneBad, ToneNeutral:
		return true
	}
	return false
}

const (
	MaxCardBullets = 6
	MaxCardMetrics = 4
)

type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone"`
}

type AnalysisCard struct {
	ID      CardID   `json:"id"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets"`
	Metrics []Metric `json:"metrics"`
}

type AnalysisReport struct {
	Version string         `json:"version"`
	Cards   []AnalysisCard `json:"cards"`
}
