package cmd

import (
	"os"

	"github.com/caarlos0/spin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
)

func newQueriesCmd() *cobra.Command {
	var company, industry string
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Generate the search queries for a new analysis.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := generateQueries(cmd, company, industry)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			p.Success("Generated %d queries for analysis %s", len(set.Queries), set.AnalysisID)
			p.renderer().Queries(set.Queries)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company to analyse")
	cmd.Flags().StringVar(&industry, "industry", "", "industry the company competes in")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("industry")
	return cmd
}

func generateQueries(cmd *cobra.Command, company, industry string) (analysis.QuerySet, error) {
	var set analysis.QuerySet
	err := withSpinner("Generating queries...", func() error {
		var err error
		set, err = appFrom(cmd).Client().GenerateQueries(cmd.Context(), company, industry)
		return err
	})
	return set, err
}

// interactive reports whether stdout is a terminal that can show spinners and bars.
func interactive() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func withSpinner(label string, fn func() error) error {
	if !interactive() {
		return fn()
	}
	s := spin.New("%s " + label)
	s.Start()
	defer s.Stop()
	return fn()
}
