package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/tracker"
)

func sampleResult() *analysis.Result {
	return &analysis.Result{
		Company:             "Acme",
		Industry:            "Widgets",
		ShareOfVoice:        30,
		TotalQueries:        10,
		BrandMentions:       8,
		CompetitorsDetected: 2,
		TopCompetitors: []analysis.Competitor{
			{Name: "Globex", ShareOfVoice: 25, MentionCount: 1200},
			{Name: "Initech", ShareOfVoice: 10, MentionCount: 4},
		},
		PositionBreakdown: analysis.PositionBreakdown{First: 4, Second: 2, ThirdOrLater: 2},
		Insights: []analysis.Insight{
			{Category: "WEAKNESS", Insight: "Rarely cited for pricing"},
			{Category: "STRENGTH", Insight: "Frequently recommended for durability"},
		},
		VisibilityGaps: []analysis.VisibilityGap{
			{Query: "best widgets", Competitors: []analysis.GapCompetitor{{Name: "Globex", Position: "1st"}}},
			{Query: "cheap widgets", Competitors: []analysis.GapCompetitor{{Name: "Globex", Position: "2nd"}, {Name: "Initech", Position: "1st"}}},
		},
		ExecutionTime: 42.5,
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result *analysis.Result
		want   int
	}{
		{
			name:   "nil",
			result: nil,
			want:   0,
		},
		{
			// 40 (capped) + 15 + 16 + 10
			name:   "leading brand",
			result: sampleResult(),
			want:   81,
		},
		{
			// 16 + 0 + 20 + 5
			name: "trailing brand without mentions",
			result: &analysis.Result{
				ShareOfVoice:   10,
				TotalQueries:   5,
				TopCompetitors: []analysis.Competitor{{Name: "Globex", ShareOfVoice: 50}},
			},
			want: 41,
		},
		{
			// 0 + 0 + 0 + 10
			name: "gaps exceed queries",
			result: &analysis.Result{
				TotalQueries:   1,
				VisibilityGaps: make([]analysis.VisibilityGap, 3),
			},
			want: 10,
		},
		{
			name:   "no queries and no gaps",
			result: &analysis.Result{},
			want:   30,
		},
		{
			name:   "no queries with gaps",
			result: &analysis.Result{VisibilityGaps: make([]analysis.VisibilityGap, 1)},
			want:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Score(tt.result))
		})
	}
}

func TestGradeFor(t *testing.T) {
	t.Parallel()

	cases := map[int]string{100: "A", 90: "A", 89: "B+", 80: "B+", 75: "B", 60: "C+", 50: "C", 49: "D", 0: "D"}
	for score, letter := range cases {
		require.Equal(t, letter, GradeFor(score).Letter, "score %d", score)
	}
	require.Equal(t, "Excellent", GradeFor(95).Label)
	require.Equal(t, "Poor", GradeFor(10).Label)
}

func TestStrengthsAndWeaknesses(t *testing.T) {
	t.Parallel()

	res := sampleResult()
	require.Equal(t, []string{
		"Strong 30.0% share of voice",
		"#1 position in 50% of mentions",
		"Frequently recommended for durability",
	}, Strengths(res))
	require.Equal(t, []string{
		"Missing from 2 high-value queries",
		"Globex has advantage in 2 gap queries",
	}, Weaknesses(res))

	res.ShareOfVoice = 5
	require.Contains(t, Weaknesses(res), "Globex leads with 25.0% SOV")
	require.Empty(t, Weaknesses(&analysis.Result{}))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abc...", truncate("abcdef", 3))
	require.Equal(t, "ééé...", truncate("éééé", 3))
}

func TestPercentAndRelativeTime(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.3%", Percent(12.34))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "5 minutes ago", RelativeTime(now.Add(-5*time.Minute), now))
	require.Empty(t, RelativeTime(time.Time{}, now))
}

func TestRendererSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewRenderer(&buf, false).Summary(sampleResult())
	out := buf.String()
	require.Contains(t, out, "Acme")
	require.Contains(t, out, "81 (B+, Very Good)")
	require.Contains(t, out, "30.0%")
	require.Contains(t, out, "4 of 8")
	require.Contains(t, out, "+ Strong 30.0% share of voice")
	require.Contains(t, out, "- Missing from 2 high-value queries")
	require.NotContains(t, out, "\x1b[")
}

func TestRendererCompetitorsAndQueries(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	r.Competitors(sampleResult().TopCompetitors)
	require.Contains(t, buf.String(), "Globex")
	require.Contains(t, buf.String(), "1,200")

	buf.Reset()
	r.Queries([]analysis.GeneratedQuery{{ID: "q1", Text: "best widgets", Type: "comparison", Category: analysis.CategoryUnbranded}})
	require.Contains(t, buf.String(), "UNBRANDED")
	require.Contains(t, buf.String(), "best widgets")

	buf.Reset()
	r.Queries(nil)
	require.Empty(t, buf.String())
}

func TestRendererJobs(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-10 * time.Second)
	jobs := []tracker.Job{
		{ID: "job-1", GroupLabel: "Acme", Status: analysis.StatusRunning, Progress: 40, Message: "Running queries", StartedAt: now.Add(-2 * time.Minute)},
		{ID: "job-2", DisplayName: "Globex", Status: analysis.StatusCompleted, Progress: 100, StartedAt: now.Add(-3 * time.Minute), FinishedAt: &finished},
	}

	var buf bytes.Buffer
	NewRenderer(&buf, true).Jobs(jobs, now)
	out := buf.String()
	require.Contains(t, out, "Running queries")
	require.Contains(t, out, "40%")
	require.Contains(t, out, "2 minutes ago")
	require.Contains(t, out, "10 seconds ago")
	require.Contains(t, out, "Globex")
	require.Contains(t, out, "\x1b[")
}

func TestLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "group", Label(tracker.Job{ID: "id", DisplayName: "name", GroupLabel: "group"}))
	require.Equal(t, "name", Label(tracker.Job{ID: "id", DisplayName: "name"}))
	require.Equal(t, "id", Label(tracker.Job{ID: "id"}))
}
