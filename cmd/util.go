package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/report"
)

// printer writes the CLI's prefixed status lines.
type printer struct {
	w      io.Writer
	au     aurora.Aurora
	colors bool
}

func newPrinter(cmd *cobra.Command) printer {
	noColor, _ := cmd.Flags().GetBool("no-color")
	colors := useColors(noColor)
	return printer{w: cmd.OutOrStdout(), au: aurora.NewAurora(colors), colors: colors}
}

func (p printer) renderer() *report.Renderer {
	return report.NewRenderer(p.w, p.colors)
}

// Message prints a dimmed informational line.
func (p printer) Message(format string, args ...any) {
	if format == "" {
		return
	}
	_, _ = fmt.Fprintln(p.w, p.au.BrightBlack("> "+fmt.Sprintf(format, args...)))
}

// Warn prints a yellow warning line.
func (p printer) Warn(format string, args ...any) {
	if format == "" {
		return
	}
	_, _ = fmt.Fprintln(p.w, p.au.Yellow("! "+fmt.Sprintf(format, args...)))
}

// Success prints a cyan success line.
func (p printer) Success(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", p.au.Cyan("> Success!"), p.au.BrightBlack(fmt.Sprintf(format, args...)))
}

// Fatal prints err the way users expect to read it and exits non-zero.
func Fatal(w io.Writer, err error) {
	au := aurora.NewAurora(useColors(false))
	_, _ = fmt.Fprintln(w, au.Red("> Error!"), au.BrightBlack(errorMessage(err)))
	os.Exit(1)
}

// errorMessage prefers the user facing message of typed analysis errors and
// capitalizes the first word.
func errorMessage(err error) string {
	msg := err.Error()
	var (
		startErr  *analysis.StartError
		statusErr *analysis.StatusError
		failedErr *analysis.FailedError
	)
	switch {
	case errors.As(err, &startErr):
		msg = startErr.Message
	case errors.As(err, &statusErr):
		msg = statusErr.Message
	case errors.As(err, &failedErr):
		msg = failedErr.Message
	}
	if msg == "" {
		return msg
	}
	runes := []rune(msg)
	runes[0] = unicode.ToUpper(runes[0])
	return strings.TrimSpace(string(runes))
}
