package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <analysis-id>",
		Short: "Check an analysis once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			snap, err := appFrom(cmd).Client().GetStatus(cmd.Context(), id)
			if err != nil {
				return analysis.NewStatusError(id, err)
			}
			status, err := analysis.MapStatus(snap.Status)
			if err != nil {
				return analysis.NewStatusError(id, fmt.Errorf("%w: %w", analysis.ErrMalformedResponse, err))
			}

			p := newPrinter(cmd)
			p.Message("Analysis %s is %s (%s)", id, status, snap.Status)
			if snap.Progress != nil {
				p.Message("Progress: %.0f%%", *snap.Progress)
			}
			if snap.Message != nil && *snap.Message != "" {
				p.Message("Message: %s", *snap.Message)
			}
			if status == analysis.StatusCompleted && snap.HasResult() {
				result, err := snap.DecodeResult()
				if err != nil {
					return analysis.NewStatusError(id, err)
				}
				p.renderer().Summary(result)
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <analysis-id>",
		Short: "Delete an analysis and its report from the backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).Client().DeleteAnalysis(cmd.Context(), args[0]); err != nil {
				return err
			}
			newPrinter(cmd).Success("Deleted analysis %s", args[0])
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis backend is reachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			h, err := a.Client().Health(cmd.Context())
			if err != nil {
				return err
			}
			newPrinter(cmd).Success("Backend at %s is %s (%s)", a.Config().API.BaseURL, h.Status, h.Timestamp)
			return nil
		},
	}
}
