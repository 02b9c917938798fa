package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
)

const progressTemplate = `{{string . "message"}} {{bar . "[" "=" ">" "-" "]"}} {{percent . }} {{etime . }}`

type runFlags struct {
	company  string
	industry string
	sync     bool
	output   string
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run [analysis-id]",
		Short: "Run an analysis in the foreground and print its report.",
		Long: `Run starts an analysis and waits for it, showing live progress. Without an
analysis id, queries are generated first from --company and --industry.
Interrupting the command stops waiting; the analysis keeps running on the
backend and can be followed with "georeport watch".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, args, flags)
		},
	}
	cmd.Flags().StringVar(&flags.company, "company", "", "company to analyse when no analysis id is given")
	cmd.Flags().StringVar(&flags.industry, "industry", "", "industry to analyse when no analysis id is given")
	cmd.Flags().BoolVar(&flags.sync, "sync", false, "use the blocking backend endpoint instead of polling")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the raw report JSON to this file")
	return cmd
}

func runAnalysis(cmd *cobra.Command, args []string, flags runFlags) error {
	a := appFrom(cmd)
	p := newPrinter(cmd)

	var analysisID string
	if len(args) == 1 {
		analysisID = args[0]
	} else {
		if flags.company == "" || flags.industry == "" {
			return errors.New("an analysis id or both --company and --industry are required")
		}
		set, err := generateQueries(cmd, flags.company, flags.industry)
		if err != nil {
			return err
		}
		analysisID = set.AnalysisID
		p.Message("Generated %d queries for analysis %s", len(set.Queries), analysisID)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		result *analysis.Result
		err    error
	)
	if flags.sync {
		err = withSpinner("Running analysis...", func() error {
			result, err = a.Client().RunAnalysis(ctx, analysisID)
			return err
		})
	} else {
		progress := newProgressView(cmd, p)
		result, err = a.NewRunner().Run(ctx, analysisID, progress.update)
		progress.finish()
	}
	if err != nil {
		if ctx.Err() != nil && cmd.Context().Err() == nil {
			p.Warn("Stopped waiting; analysis %s is still running on the backend", analysisID)
		}
		return err
	}

	if flags.output != "" {
		if err := os.WriteFile(flags.output, result.Raw, 0o600); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		p.Message("Report written to %s", flags.output)
	}

	p.Success("Analysis %s completed", analysisID)
	r := p.renderer()
	r.Summary(result)
	r.Competitors(result.TopCompetitors)
	return nil
}

// progressView shows foreground progress as a bar on terminals and as
// plain lines otherwise.
type progressView struct {
	bar *pb.ProgressBar
	p   printer
}

func newProgressView(cmd *cobra.Command, p printer) *progressView {
	v := &progressView{p: p}
	if interactive() {
		v.bar = pb.New(100)
		v.bar.SetWriter(cmd.ErrOrStderr())
		v.bar.SetTemplate(pb.ProgressBarTemplate(progressTemplate))
	}
	return v
}

func (v *progressView) update(progress float64, message string) {
	if v.bar == nil {
		v.p.Message("%3.0f%% %s", progress, message)
		return
	}
	v.bar.Set("message", message)
	v.bar.SetCurrent(int64(math.Round(progress)))
	if !v.bar.IsStarted() {
		v.bar.Start()
	}
}

func (v *progressView) finish() {
	if v.bar != nil && v.bar.IsStarted() {
		v.bar.Finish()
	}
}
