package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/benbjohnson/hoare"
	"github.com/benbjohnson/hoare/ir"
	"github.com/benbjohnson/hoare/z3"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Process exit codes.
const (
	ExitDisproved = ExitCode(5) // some function disproved or unknown
	ExitInvalid   = ExitCode(4) // some function structurally invalid
)

// ExitCode is returned as an error to set the process exit status.
type ExitCode int

func (c ExitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

var (
	timeout    time.Duration
	workers    int
	collectAll bool
	noColor    bool
	progress   bool
)

var (
	provedStyle    = color.New(color.FgGreen, color.Bold)
	disprovedStyle = color.New(color.FgRed, color.Bold)
	unknownStyle   = color.New(color.FgYellow, color.Bold)
	invalidStyle   = color.New(color.FgMagenta, color.Bold)
	fileStyle      = color.New(color.FgCyan, color.Bold)
	detailStyle    = color.New(color.FgBlue)
)

// newSolver returns a solver session for one function.
var newSolver = func() (hoare.Solver, error) {
	return z3.NewSolver(), nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify [flags] FILE...",
	Short: "Verify every function in the given program files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		code, err := runVerify(ctx, logger, cmd.OutOrStdout(), config, args)
		if err != nil {
			return err
		} else if code != 0 {
			return code
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().DurationVar(&timeout, "timeout", hoare.DefaultTimeout, "Solver timeout per obligation")
	verifyCmd.Flags().IntVar(&workers, "workers", 0, "Number of functions verified concurrently (default: CPU count)")
	verifyCmd.Flags().BoolVar(&collectAll, "collect-all", false, "Report every failing obligation instead of the first")
	verifyCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	verifyCmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar")
}

// loadConfig reads the configuration file, if any, and applies flags that
// were explicitly set on top of it.
func loadConfig(cmd *cobra.Command) (hoare.Config, error) {
	config := hoare.NewConfig()
	if cfgFile != "" {
		var err error
		if config, err = hoare.ReadConfigFile(cfgFile); err != nil {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		config.Timeout = hoare.Duration(timeout)
	}
	if flags.Changed("workers") {
		config.Workers = workers
	}
	if flags.Changed("collect-all") && collectAll {
		config.Mode = hoare.ModeCollectAll
	}
	if flags.Changed("no-color") {
		config.Color = !noColor
	}
	if flags.Changed("progress") {
		config.Progress = progress
	}
	return config, config.Validate()
}

// runVerify verifies each file and writes one line per function to w.
// Returns the exit code for the aggregate verdict.
func runVerify(ctx context.Context, logger *zap.Logger, w io.Writer, config hoare.Config, paths []string) (ExitCode, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	color.NoColor = color.NoColor || !config.Color

	var code ExitCode
	for _, path := range paths {
		prog, err := readProgram(path)
		if err != nil {
			return 0, err
		}

		v := hoare.NewVerifier(newSolver)
		v.Timeout = time.Duration(config.Timeout)
		v.Mode = config.Mode
		v.Logger = logger.With(zap.String("file", path))
		if config.Workers > 0 {
			v.Workers = config.Workers
		}

		if config.Progress && len(prog.Functions) > 0 {
			bar := newProgressBar(path, len(prog.Functions))
			v.OnResult = func(*hoare.Result) { _ = bar.Add(1) }
		}

		results, err := v.VerifyProgram(ctx, prog)
		if err != nil {
			return 0, err
		}

		if len(paths) > 1 {
			fmt.Fprintln(w, fileStyle.Sprint(path))
		}
		for _, result := range results {
			printResult(w, result)
			code = mergeExitCode(code, result.Status)
		}
	}
	return code, nil
}

func readProgram(path string) (*ir.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prog, err := ir.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func newProgressBar(desc string, n int) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// mergeExitCode keeps the most severe code. Invalid outranks disproved.
func mergeExitCode(code ExitCode, status hoare.Status) ExitCode {
	switch status {
	case hoare.StatusInvalid:
		return ExitInvalid
	case hoare.StatusDisproved, hoare.StatusUnknown:
		if code == 0 {
			return ExitDisproved
		}
	}
	return code
}

func printResult(w io.Writer, r *hoare.Result) {
	switch r.Status {
	case hoare.StatusProved:
		fmt.Fprintf(w, "%s %s %s\n", provedStyle.Sprintf("%-9s", r.Status), r.Function,
			detailStyle.Sprintf("(%d obligations)", len(r.Obligations)))

	case hoare.StatusDisproved:
		fmt.Fprintf(w, "%s %s\n", disprovedStyle.Sprintf("%-9s", r.Status), r.Function)
		for _, f := range r.Failures() {
			fmt.Fprintf(w, "    %s\n", f.Obligation)
			fmt.Fprintf(w, "    %s %s\n", detailStyle.Sprint("counterexample:"), f.Counterexample)
		}

	case hoare.StatusUnknown:
		fmt.Fprintf(w, "%s %s\n", unknownStyle.Sprintf("%-9s", r.Status), r.Function)
		fmt.Fprintf(w, "    %s\n", r.Reason())

	case hoare.StatusInvalid:
		fmt.Fprintf(w, "%s %s\n", invalidStyle.Sprintf("%-9s", r.Status), r.Function)
		fmt.Fprintf(w, "    %s\n", r.Reason())
	}
}
