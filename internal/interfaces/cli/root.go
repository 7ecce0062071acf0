// Package cli implements ptoctl, the operator command line for the fee
// pipeline.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeffrey-bowles/uspto/internal/application/pipeline"
	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// annotationNoConfig marks commands that run without loading a Config.
const annotationNoConfig = "ptoctl/no-config"

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// JobRunner runs a pipeline job by name.
type JobRunner interface {
	Run(ctx context.Context, job string) (*pipeline.Report, error)
}

// Deps are the factories the commands open their collaborators with. Each
// Open func returns a closer that may be nil.
type Deps struct {
	LoadConfig    func(path string) (*config.Config, error)
	NewLogger     func(cfg logging.LogConfig) (logging.Logger, error)
	OpenRunner    func(ctx context.Context, cfg *config.Config, logger logging.Logger) (JobRunner, func() error, error)
	OpenPublisher func(ctx context.Context, cfg *config.Config, logger logging.Logger) (pipeline.Publisher, func() error, error)
	Clock         reporting.Clock
}

func (d Deps) withDefaults() Deps {
	if d.LoadConfig == nil {
		d.LoadConfig = config.LoadOrEnv
	}
	if d.NewLogger == nil {
		d.NewLogger = logging.NewLogger
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
// Config is nil for commands that do not need one.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// NewRootCommand creates the ptoctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ptoctl",
		Short: "ptoctl runs the USPTO maintenance fee pipeline",
		Long: "ptoctl reconciles USPTO maintenance fee events and patent assignments,\n" +
			"enriches assignees from PatentsView and builds the reporting set index\n" +
			"served by apiserver.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, deps)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: USPTO_* environment only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "abort the command after this long (0 disables)")

	cmd.AddCommand(
		newFeesCmd(deps),
		newAssignmentsCmd(deps),
		newEnrichCmd(deps),
		newIndexCmd(deps),
		newCycleCmd(deps),
		newJobsCmd(deps),
		newWindowsCmd(deps),
		newVersionCmd(),
	)
	return cmd
}

// persistentPreRun loads config and the logger, then stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions, deps Deps) error {
	cliCtx := &CLIContext{
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
	}

	logCfg := config.LogConfig{Level: "info", Format: "console"}
	if cmd.Annotations[annotationNoConfig] == "" {
		cfg, err := deps.LoadConfig(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("config initialization failed: %w", err)
		}
		cliCtx.Config = cfg
		logCfg = cfg.Log
	}

	logger, err := initLogger(deps, logCfg, opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	cliCtx.Logger = logger

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initLogger creates a logger for CLI usage. Records go to stderr so stdout
// carries only command output.
func initLogger(deps Deps, cfg config.LogConfig, opts *RootOptions) (logging.Logger, error) {
	level := cfg.Level
	if opts.LogLevel != "" {
		level = strings.ToLower(opts.LogLevel)
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	return deps.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           cfg.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "command context is nil")
	}

	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeValidation, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext applies --timeout to the command context.
func commandContext(cmd *cobra.Command, cliCtx *CLIContext) (context.Context, context.CancelFunc) {
	if cliCtx.Timeout > 0 {
		return context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	}
	return context.WithCancel(cmd.Context())
}

// Execute builds the command tree, runs it and prints any error.
func Execute(ctx context.Context, deps Deps) error {
	rootCmd := NewRootCommand(deps)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch strings.ToLower(cliCtx.OutputFormat) {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// printTable renders data implementing TableHeaders/TableRows, otherwise
// falls back to text.
func printTable(cmd *cobra.Command, data interface{}) error {
	type tableProvider interface {
		TableHeaders() []string
		TableRows() [][]string
	}

	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
