package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/tracker"
)

// Renderer writes plain tables to an io.Writer.
type Renderer struct {
	w      io.Writer
	colors bool
}

// NewRenderer returns a Renderer writing to w. colors tints table headers.
func NewRenderer(w io.Writer, colors bool) *Renderer {
	return &Renderer{w: w, colors: colors}
}

// Table renders header and rows. Empty data renders nothing.
func (r *Renderer) Table(header []string, data [][]string) {
	if len(data) == 0 {
		return
	}
	table := tablewriter.NewWriter(r.w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	if r.colors {
		headerColors := make([]tablewriter.Colors, len(header))
		for i := range headerColors {
			headerColors[i] = tablewriter.Colors{tablewriter.FgHiBlackColor}
		}
		table.SetHeaderColor(headerColors...)
	}
	table.AppendBulk(data)
	table.Render()
}

// Summary renders the headline numbers of a result followed by its
// strengths and weaknesses.
func (r *Renderer) Summary(res *analysis.Result) {
	score := Score(res)
	grade := GradeFor(score)
	r.Table([]string{"metric", "value"}, [][]string{
		{"Company", res.Company},
		{"Industry", res.Industry},
		{"Score", fmt.Sprintf("%d (%s, %s)", score, grade.Letter, grade.Label)},
		{"Share of voice", Percent(res.ShareOfVoice)},
		{"Queries", strconv.Itoa(res.TotalQueries)},
		{"Brand mentions", strconv.Itoa(res.BrandMentions)},
		{"First position", fmt.Sprintf("%d of %d", res.PositionBreakdown.First, res.PositionBreakdown.Total())},
		{"Competitors", strconv.Itoa(res.CompetitorsDetected)},
		{"Visibility gaps", strconv.Itoa(len(res.VisibilityGaps))},
		{"Execution time", fmt.Sprintf("%.1fs", res.ExecutionTime)},
	})
	for _, s := range Strengths(res) {
		_, _ = fmt.Fprintf(r.w, "+ %s\n", s)
	}
	for _, s := range Weaknesses(res) {
		_, _ = fmt.Fprintf(r.w, "- %s\n", s)
	}
}

// Competitors renders the competitor ranking.
func (r *Renderer) Competitors(competitors []analysis.Competitor) {
	data := make([][]string, 0, len(competitors))
	for i, c := range competitors {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			c.Name,
			Percent(c.ShareOfVoice),
			humanize.Comma(int64(c.MentionCount)),
		})
	}
	r.Table([]string{"rank", "competitor", "share of voice", "mentions"}, data)
}

// Queries renders a generated query set.
func (r *Renderer) Queries(queries []analysis.GeneratedQuery) {
	data := make([][]string, 0, len(queries))
	for _, q := range queries {
		data = append(data, []string{q.ID, string(q.Category), q.Type, q.Text})
	}
	r.Table([]string{"id", "category", "type", "query"}, data)
}

// Jobs renders tracked jobs with times relative to now.
func (r *Renderer) Jobs(jobs []tracker.Job, now time.Time) {
	data := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		finished := ""
		if j.FinishedAt != nil {
			finished = RelativeTime(*j.FinishedAt, now)
		}
		data = append(data, []string{
			j.ID,
			Label(j),
			string(j.Status),
			fmt.Sprintf("%.0f%%", j.Progress),
			j.Message,
			RelativeTime(j.StartedAt, now),
			finished,
		})
	}
	r.Table([]string{"job", "label", "status", "progress", "message", "started", "finished"}, data)
}

// Label is the name shown for a tracked job.
func Label(j tracker.Job) string {
	switch {
	case j.GroupLabel != "":
		return j.GroupLabel
	case j.DisplayName != "":
		return j.DisplayName
	default:
		return j.ID
	}
}

// RelativeTime formats t relative to now, e.g. "3 seconds ago".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
