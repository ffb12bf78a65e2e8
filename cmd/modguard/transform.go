package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kolkov/modguard/internal/instrument"
)

type transformOptions struct {
	outDir    string
	classpath []string
	verbose   bool
}

func newTransformCmd(a *app) *cobra.Command {
	opts := &transformOptions{}

	cmd := &cobra.Command{
		Use:   "transform <module-dir>",
		Short: "Instrument every module in a directory",
		Long: `Instrument every <name>.mgm module in a directory and write the result,
changed or not, to the output directory. A module that fails to decode,
transform or encode is not written and makes the command fail.

Examples:
  modguard transform -o out/ modules/
  modguard transform -o out/ --classpath platform/ --leak-double-release modules/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, a, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "output", "o", "", "output directory (required)")
	cmd.Flags().StringSliceVar(&opts.classpath, "classpath", nil, "extra directories to resolve ancestors from")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "list every module")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runTransform(cmd *cobra.Command, a *app, opts *transformOptions, inDir string) error {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files, err := moduleFiles(inDir)
	if err != nil {
		return err
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a.serveMetrics(ctx)

	b := newBatch(ag, inDir, opts.outDir, opts.classpath, a.cfg.Workers, a.logger)
	results, runErr := b.run(ctx, files)

	printResults(cmd.OutOrStdout(), results, opts.verbose)
	printSummary(cmd.OutOrStdout(), ag.Stats())
	return runErr
}

func printResults(w io.Writer, results []fileResult, verbose bool) {
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for _, r := range results {
		switch {
		case r.Err != nil:
			red.Fprintf(w, "FAILED:       %s\n", r.Module)
			fmt.Fprintf(w, "  %v\n", r.Err)
		case r.Changed:
			green.Fprintf(w, "Instrumented: %s\n", r.Module)
		case verbose:
			gray.Fprintf(w, "Unchanged:    %s\n", r.Module)
		}
	}
}

func printSummary(w io.Writer, stats instrument.StatsSnapshot) {
	fmt.Fprintf(w, "\n%d modules seen\n", stats.Seen)
	fmt.Fprintf(w, "  - %d instrumented\n", stats.Mutated)
	fmt.Fprintf(w, "  - %d unchanged\n", stats.Unchanged())
	fmt.Fprintf(w, "  - %d skipped (core)\n", stats.Skipped)
	if stats.Failed > 0 {
		color.New(color.FgRed).Fprintf(w, "  - %d failed\n", stats.Failed)
	} else {
		fmt.Fprintf(w, "  - %d failed\n", stats.Failed)
	}
}
