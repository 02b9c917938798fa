// Package report formats analysis results for terminal output. It never
// computes analysis metrics itself: everything except the performance score
// is a display transform of values the backend already returned.
package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
)

// Grade is a letter grade with a short label.
type Grade struct {
	Letter string
	Label  string
}

var grades = []struct {
	min   int
	grade Grade
}{
	{90, Grade{"A", "Excellent"}},
	{80, Grade{"B+", "Very Good"}},
	{70, Grade{"B", "Good"}},
	{60, Grade{"C+", "Fair"}},
	{50, Grade{"C", "Needs Work"}},
}

// Score rates a result from 0 to 100:
//
//	share of voice     min(sov*1.6, 40)
//	first position     first/mentions * 30
//	coverage           max(20 - gaps/queries*20, 0)
//	competition        10 if none detected or leading, else 5
func Score(r *analysis.Result) int {
	if r == nil {
		return 0
	}
	score := math.Min(r.ShareOfVoice*1.6, 40)

	if r.BrandMentions > 0 {
		score += float64(r.PositionBreakdown.First) / float64(r.BrandMentions) * 30
	}

	switch {
	case r.TotalQueries > 0:
		penalty := float64(len(r.VisibilityGaps)) / float64(r.TotalQueries) * 20
		score += math.Max(20-penalty, 0)
	case len(r.VisibilityGaps) == 0:
		score += 20
	}

	if len(r.TopCompetitors) == 0 || r.ShareOfVoice > r.TopCompetitors[0].ShareOfVoice {
		score += 10
	} else {
		score += 5
	}

	return int(math.Round(score))
}

// GradeFor maps a score to its letter grade.
func GradeFor(score int) Grade {
	for _, g := range grades {
		if score >= g.min {
			return g.grade
		}
	}
	return Grade{"D", "Poor"}
}

// Strengths lists the notable positives of a result.
func Strengths(r *analysis.Result) []string {
	var out []string
	if r.ShareOfVoice > 20 {
		out = append(out, fmt.Sprintf("Strong %.1f%% share of voice", r.ShareOfVoice))
	}
	if r.BrandMentions > 0 {
		rate := float64(r.PositionBreakdown.First) / float64(r.BrandMentions) * 100
		if rate > 40 {
			out = append(out, fmt.Sprintf("#1 position in %.0f%% of mentions", rate))
		}
	}
	for _, in := range r.Insights {
		if in.Category == "STRENGTH" || in.Category == "OPPORTUNITY" {
			out = append(out, truncate(in.Insight, 60))
			break
		}
	}
	return out
}

// Weaknesses lists the notable negatives of a result.
func Weaknesses(r *analysis.Result) []string {
	var out []string
	if n := len(r.VisibilityGaps); n > 0 {
		out = append(out, fmt.Sprintf("Missing from %d high-value queries", n))
	}
	if len(r.TopCompetitors) == 0 {
		return out
	}
	top := r.TopCompetitors[0]
	if top.ShareOfVoice > r.ShareOfVoice {
		out = append(out, fmt.Sprintf("%s leads with %.1f%% SOV", top.Name, top.ShareOfVoice))
	}
	if name, count := gapLeader(r.VisibilityGaps); count > 0 {
		out = append(out, fmt.Sprintf("%s has advantage in %d gap queries", name, count))
	}
	return out
}

// gapLeader returns the competitor appearing in the most visibility gaps,
// breaking ties by name.
func gapLeader(gaps []analysis.VisibilityGap) (string, int) {
	counts := make(map[string]int)
	for _, gap := range gaps {
		for _, c := range gap.Competitors {
			counts[c.Name]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) == 0 {
		return "", 0
	}
	return names[0], counts[names[0]]
}

// Percent formats a backend percentage value with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
