// Package main provides the entry point for the fleetq fleet query runner.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleetq/fleetq/cmd/fleetq/config"
	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/infrastructure/metrics"
	"github.com/fleetq/fleetq/pkg/models"
	"github.com/fleetq/fleetq/pkg/repositories/postgres"
	"github.com/fleetq/fleetq/pkg/services"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Exit codes surfaced to scripts driving fleetq.
const (
	exitOK         = 0
	exitRuntime    = 1
	exitValidation = 2
	exitConfig     = 3
)

var rootCmd = &cobra.Command{
	Use:   "fleetq",
	Short: "fleetq read-only fleet query runner",
	Long: `Run a single read-only SQL script against a fleet of PostgreSQL
endpoints and report results per endpoint.

Every script is statically classified before execution and runs inside a
read-only transaction that is never committed, so no endpoint can be
mutated even by a malicious script.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a read-only query against every configured endpoint",
	Long: `Execute a read-only query against every configured endpoint.

Example:
  fleetq run --config fleet.yaml --query "SELECT version();"
  fleetq run --config fleet.yaml --file report.sql --csv --precheck`,
	RunE: runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe connectivity of every configured endpoint",
	RunE:  runCheck,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Classify a query without executing it",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)

	for _, cmd := range []*cobra.Command{runCmd, checkCmd} {
		cmd.Flags().StringP("config", "c", "", "config file path (required)")
	}
	for _, cmd := range []*cobra.Command{runCmd, validateCmd} {
		cmd.Flags().StringP("query", "q", "", "SQL query text")
		cmd.Flags().StringP("file", "f", "", "file containing the SQL query")
		cmd.Flags().BoolP("verbose", "v", false, "verbose diagnostic output")
	}
	runCmd.Flags().Bool("csv", false, "render results as CSV instead of tables")
	runCmd.Flags().Bool("precheck", false, "probe endpoints first and skip unreachable ones")
	runCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	runCmd.Flags().String("metrics-address", "", "expose Prometheus metrics on this address during the run")

	viper.SetEnvPrefix("FLEETQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fleetq\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps pipeline errors onto process exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.IsValidationFailed(err):
		return exitValidation
	case errors.GetCode(err) == errors.CodeConfigInvalid:
		return exitConfig
	default:
		return exitRuntime
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	query, err := loadQuery(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := setupLogging(cfg.LogLevel, verbose)

	logger.Info().
		Str("version", version).
		Int("endpoints", len(cfg.Endpoints)).
		Msg("Starting fleetq run")

	// Metrics are off unless an address is configured.
	var collector metrics.Collector = metrics.NewNoOpCollector()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		promCollector := metrics.NewPrometheusCollector()
		collector = promCollector
		metricsServer = metrics.NewServer(cfg.Metrics.Address, promCollector)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Debug().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}()
	}

	executor, renderer := buildPipeline(cfg, logger, collector)

	// Fail the whole run before any endpoint work when the script is not
	// read-only.
	classifier := services.NewStatementClassifier()
	validation := classifier.Validate(query)
	if verbose {
		printValidation(cmd.OutOrStdout(), validation)
	}
	if !validation.IsValid {
		return errors.New(errors.CodeValidationFailed, validation.ErrorMessage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoints := cfg.Endpoints
	if precheck, _ := cmd.Flags().GetBool("precheck"); precheck {
		var probes []models.ProbeResult
		endpoints, probes = executor.FilterReachable(ctx, endpoints)
		for _, probe := range probes {
			if !probe.Success {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping endpoint %s: %s\n", probe.EndpointID, probe.Message)
			}
		}
	}

	mode := services.RenderTable
	if csv, _ := cmd.Flags().GetBool("csv"); csv {
		mode = services.RenderCSV
	}

	// Stream: each endpoint's rendered outcome is written before the next
	// endpoint starts.
	session := services.NewRenderSession()
	out := cmd.OutOrStdout()
	var renderErr error
	err = executor.Run(ctx, models.RunRequest{Query: query, Timeout: cfg.CommandTimeout}, endpoints,
		func(outcome models.QueryOutcome) {
			if renderErr != nil {
				return
			}
			renderErr = renderer.RenderOne(out, outcome, mode, session)
		})
	if err != nil {
		return err
	}
	if renderErr != nil {
		return renderErr
	}

	logger.Info().Msg("Run complete")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogging(cfg.LogLevel, false)

	factory := postgres.NewConnectionFactory(postgres.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		ProbeWidth:     cfg.ProbeWidth,
	}, logger.With().Str("component", "connection_factory").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probes := factory.Probe(ctx, cfg.Endpoints)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Endpoint", "Status", "Latency", "Server", "Message"})
	table.SetAutoWrapText(false)

	failed := 0
	for _, probe := range probes {
		status := "ok"
		if !probe.Success {
			status = "unreachable"
			failed++
		}
		table.Append([]string{
			probe.EndpointID,
			status,
			probe.Elapsed.Round(time.Millisecond).String(),
			probe.ServerVersion,
			probe.Message,
		})
	}
	table.Render()

	if failed > 0 {
		return errors.Newf(errors.CodeUnreachable, "%d of %d endpoints unreachable", failed, len(probes))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	query, err := loadQuery(cmd)
	if err != nil {
		return err
	}

	classifier := services.NewStatementClassifier()
	validation := classifier.Validate(query)

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		printValidation(cmd.OutOrStdout(), validation)
	}

	if !validation.IsValid {
		return errors.New(errors.CodeValidationFailed, validation.ErrorMessage)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "query is valid: %d SELECT statement(s)\n", validation.StatementCount)
	return nil
}

// buildPipeline wires the repository layer and services for one run.
func buildPipeline(cfg *config.Config, logger zerolog.Logger, collector metrics.Collector) (services.Executor, services.Renderer) {
	factory := postgres.NewConnectionFactory(postgres.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		ProbeWidth:     cfg.ProbeWidth,
	}, logger.With().Str("component", "connection_factory").Logger())

	guard := postgres.NewTransactionGuard(cfg.CommandTimeout,
		logger.With().Str("component", "transaction_guard").Logger())

	executor := services.NewExecutor(
		factory,
		guard,
		&loggerAdapter{logger: logger.With().Str("component", "executor").Logger()},
		&metricsAdapter{collector: collector},
	)

	renderer := services.NewRenderer(
		&loggerAdapter{logger: logger.With().Str("component", "renderer").Logger()},
	)

	return executor, renderer
}

// loadConfig reads and validates the YAML config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "--config is required")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read config file %s", configFile)
	}

	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to parse config file")
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if addr, _ := cmd.Flags().GetString("metrics-address"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "invalid configuration")
	}

	return cfg, nil
}

// loadQuery resolves the SQL text from --query or --file.
func loadQuery(cmd *cobra.Command) (string, error) {
	query, _ := cmd.Flags().GetString("query")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case query != "" && file != "":
		return "", errors.New(errors.CodeInvalidQuery, "--query and --file are mutually exclusive")
	case query != "":
		return query, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, errors.CodeInvalidQuery, "failed to read query file %s", file)
		}
		return string(data), nil
	default:
		return "", errors.New(errors.CodeInvalidQuery, "either --query or --file is required")
	}
}

// printValidation emits the per-statement classification breakdown.
func printValidation(w io.Writer, validation models.ValidationOutcome) {
	fmt.Fprintf(w, "statements: %d\n", validation.StatementCount)
	for _, stmt := range validation.Statements {
		status := "ok"
		if !stmt.IsValid {
			status = stmt.ErrorMessage
		}
		text := stmt.RawText
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "  %2d. [%s] %s  (%s)\n", stmt.Index, stmt.StatementType, text, status)
	}
}

func setupLogging(level string, verbose bool) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	if verbose {
		level = "debug"
	}

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	// Logs go to stderr; stdout carries rendered results only.
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).
		With().
		Timestamp().
		Logger()
}
