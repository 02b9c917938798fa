package analysis

import "encoding/json"

// Result is the report payload returned by a completed analysis. All values are
// computed by the backend.
type Result struct {
	AnalysisID          string            `json:"analysisId"`
	Company             string            `json:"company"`
	Industry            string            `json:"industry"`
	ShareOfVoice        float64           `json:"shareOfVoice"`
	TotalQueries        int               `json:"totalQueries"`
	BrandMentions       int               `json:"brandMentions"`
	CompetitorsDetected int               `json:"competitorsDetected"`
	TopCompetitors      []Competitor      `json:"topCompetitors"`
	PositionBreakdown   PositionBreakdown `json:"positionBreakdown"`
	Insights            []Insight         `json:"insights"`
	Attributes          Attributes        `json:"attributes"`
	VisibilityGaps      []VisibilityGap   `json:"visibilityGaps"`
	SampleMentions      []SampleMention   `json:"sampleMentions"`
	ReportPath          string            `json:"reportPath"`
	ExecutionTime       float64           `json:"executionTime"`

	// Raw keeps the payload as received.
	Raw json.RawMessage `json:"-"`
	// Unmatched names the first payload field whose value did not fit the
	// typed view. Empty when every field decoded; Raw is complete either way.
	Unmatched string `json:"-"`
}

// Competitor is a brand detected alongside the analysed company.
type Competitor struct {
	Name         string  `json:"name"`
	ShareOfVoice float64 `json:"shareOfVoice"`
	MentionCount int     `json:"mentionCount"`
}

// PositionBreakdown counts where the brand appeared in answers.
type PositionBreakdown struct {
	First        int `json:"first"`
	Second       int `json:"second"`
	ThirdOrLater int `json:"thirdOrLater"`
}

// Total is the number of answers that mentioned the brand at any position.
func (p PositionBreakdown) Total() int {
	return p.First + p.Second + p.ThirdOrLater
}

// Insight is a backend generated finding with a recommendation.
type Insight struct {
	Category       string `json:"category"`
	Insight        string `json:"insight"`
	Recommendation string `json:"recommendation"`
}

// Attributes holds descriptor frequencies split by query category.
type Attributes struct {
	Unbranded AttributeSet `json:"unbranded"`
	Branded   AttributeSet `json:"branded"`
}

// AttributeSet counts how often each descriptor was used, per dimension.
type AttributeSet struct {
	Pricing     map[string]float64 `json:"pricing"`
	SkillLevel  map[string]float64 `json:"skillLevel"`
	Features    map[string]float64 `json:"features"`
	Limitations map[string]float64 `json:"limitations"`
	Sentiment   map[string]float64 `json:"sentiment"`
}

// VisibilityGap is a query where competitors appeared and the brand did not.
type VisibilityGap struct {
	Query       string          `json:"query"`
	Competitors []GapCompetitor `json:"competitors"`
}

// GapCompetitor is a competitor's position within a visibility gap.
type GapCompetitor struct {
	Name string `json:"name"`
	// Position is the backend's label, e.g. "1st".
	Position string `json:"position"`
}

// SampleMention is an excerpt of an answer mentioning the brand.
type SampleMention struct {
	Query   string `json:"query"`
	Excerpt string `json:"excerpt"`
}
