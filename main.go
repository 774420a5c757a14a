// ABOUTME: CLI entry point for garmin-report.
// ABOUTME: Dispatches setup, summary, activities, runs and training, and renders errors as JSON.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const programName = "garmin-report"

type App struct {
	cfg    *Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger

	// configErr is a configuration file problem that was skipped at startup.
	configErr error

	verbose bool
	today   func() string
	open    func(ctx context.Context, cfg *Config) (Source, error)
	newAuth func(cfg *Config) Authenticator
}

func main() {
	cfg, err := defaultConfig()
	app := NewApp(cfg, os.Stdin, os.Stdout, os.Stderr)
	app.configErr = err
	os.Exit(app.Run(context.Background(), os.Args[1:]))
}

func NewApp(cfg *Config, stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: log.New(io.Discard, "[garmin] ", log.LstdFlags),
		today:  func() string { return time.Now().Format(time.DateOnly) },
		open:   loadSession,
		newAuth: func(cfg *Config) Authenticator {
			return NewClient(cfg.Domain, cfg.Timeout)
		},
	}
}

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if args == nil {
		args = []string{}
	}
	root := a.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		a.logger.Printf("command failed (%s): %v", kindOf(err), err)
		writeError(a.stdout, err.Error())
		return 1
	}
	return 0
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               programName,
		Short:             "Garmin Connect health and activity metrics as JSON",
		Args:              cobra.ArbitraryArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.verbose || a.cfg.Verbose {
				a.logger.SetOutput(a.stderr)
			}
			if a.configErr != nil {
				color.New(color.FgYellow).Fprintf(a.stderr, "warning: ignoring configuration: %v\n", a.configErr)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				a.printHelp()
				return nil
			}
			return newError(UnknownCommand, nil, "Unknown command: %s", args[0])
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetHelpFunc(func(*cobra.Command, []string) { a.printHelp() })
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log skipped report sections to stderr")

	root.AddCommand(
		a.setupCommand(),
		a.summaryCommand(),
		a.activitiesCommand("activities", "N most recent activities (default: 5)", (*Report).Activities),
		a.activitiesCommand("runs", "N most recent running workouts (default: 5)", (*Report).Runs),
		a.trainingCommand(),
	)
	return root
}

func (a *App) printHelp() {
	bold := color.New(color.Bold)
	w := a.stdout

	bold.Fprintln(w, "Garmin Connect CLI")
	fmt.Fprintln(w)
	bold.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  setup                  First-time interactive login (run once)")
	fmt.Fprintln(w, "  summary [DATE]         Body Battery, steps, stress, resting HR")
	fmt.Fprintln(w, "  activities [N]         N most recent activities (default: 5)")
	fmt.Fprintln(w, "  runs [N]               N most recent running workouts (default: 5)")
	fmt.Fprintln(w, "  training               Training status, load, VO2 max")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DATE format: YYYY-MM-DD (defaults to today)")
	fmt.Fprintln(w, "Flags: --table (activities, runs), --email (setup), --verbose")
}

type setupResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (a *App) setupCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "First-time interactive login (run once)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email != "" {
				a.cfg.Email = email
			}
			msg, err := runSetup(cmd.Context(), a.cfg, a.newAuth(a.cfg), a.stdin, a.stderr)
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, setupResult{OK: true, Message: msg})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email, overrides "+envEmail)
	return cmd
}

func (a *App) summaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [DATE]",
		Short: "Body Battery, steps, stress, resting HR",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := a.today()
			if len(args) > 0 {
				if _, err := time.Parse(time.DateOnly, args[0]); err != nil {
					return newError(InvalidArgument, err, "Invalid date %q: expected YYYY-MM-DD", args[0])
				}
				date = args[0]
			}

			src, err := a.open(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			var rec SummaryRecord
			withSpinner(a.stderr, "fetching summary for "+date+"...", func() {
				rec = NewReport(src, a.logger).Summary(cmd.Context(), date)
			})
			return writeJSON(a.stdout, rec)
		},
	}
}

type listFunc func(r *Report, ctx context.Context, n int) ([]ActivityRecord, error)

func (a *App) activitiesCommand(name, short string, list listFunc) *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   name + " [N]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := defaultCount
			if len(args) > 0 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return newError(InvalidArgument, err, "Invalid count %q: must be a positive integer", args[0])
				}
				n = parsed
			}

			src, err := a.open(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			var records []ActivityRecord
			withSpinner(a.stderr, "fetching "+name+"...", func() {
				records, err = list(NewReport(src, a.logger), cmd.Context(), n)
			})
			if err != nil {
				return newError(FetchFailed, err, "%v", err)
			}

			if table {
				return renderActivities(a.stdout, records)
			}
			return writeJSON(a.stdout, records)
		},
	}
	cmd.Flags().BoolVar(&table, "table", false, "render a table instead of JSON")
	return cmd
}

func (a *App) trainingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "training",
		Short: "Training status, load, VO2 max",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.open(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			date := a.today()
			var rec TrainingRecord
			withSpinner(a.stderr, "fetching training metrics...", func() {
				rec = NewReport(src, a.logger).Training(cmd.Context(), date)
			})
			return writeJSON(a.stdout, rec)
		},
	}
}
