// COVID Analytics CLI
// This application provides a command-line interface for fetching,
// cleaning, analyzing, and exporting COVID-19 epidemiological data.
//
// Usage:
//
//	covid fetch --synthetic --output data/raw.csv
//	covid clean --input data/raw.csv --output data/cleaned.csv
//	covid metrics --input data/cleaned.csv --metric mortality --country France
//	covid trend --input data/cleaned.csv --metric new_cases --country France
//	covid export --input data/cleaned.csv --output report.json --format json
//
// For detailed help on any command, use: covid <command> --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/epi-analytics/go-covid-analytics/internal/analytics"
	"github.com/epi-analytics/go-covid-analytics/internal/cleaner"
	"github.com/epi-analytics/go-covid-analytics/internal/config"
	"github.com/epi-analytics/go-covid-analytics/internal/exporter"
	"github.com/epi-analytics/go-covid-analytics/internal/logger"
	"github.com/epi-analytics/go-covid-analytics/internal/models"
	"github.com/epi-analytics/go-covid-analytics/internal/pipeline"
	"github.com/epi-analytics/go-covid-analytics/internal/quality"
	"github.com/epi-analytics/go-covid-analytics/internal/source"
	"github.com/epi-analytics/go-covid-analytics/internal/storage"
)

const (
	Version    = "1.0.0"
	AppName    = "covid"
	ConfigFile = "covid.json"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
)

// CLI holds the wired application components.
type CLI struct {
	config   *config.AppConfig
	logs     *logger.Manager
	exporter *exporter.Exporter
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := &CLI{}
	if err := cli.initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize CLI: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.logs.Close()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "fetch":
		if err := cli.handleFetch(ctx, args); err != nil {
			cli.logs.Logger().Error("Fetch failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "clean":
		if err := cli.handleClean(ctx, args); err != nil {
			cli.logs.Logger().Error("Cleaning failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "metrics":
		if err := cli.handleMetrics(ctx, args); err != nil {
			cli.logs.Logger().Error("Metrics failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "trend":
		if err := cli.handleTrend(ctx, args); err != nil {
			cli.logs.Logger().Error("Trend analysis failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "export":
		if err := cli.handleExport(ctx, args); err != nil {
			cli.logs.Logger().Error("Export failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

func (cli *CLI) initialize() error {
	cfg, err := config.NewManager(ConfigFile, nil).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cli.config = cfg

	logs, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cli.logs = logs
	cli.exporter = exporter.New(logs.Logger())
	return nil
}

// createStorage creates the configured storage backend.
func (cli *CLI) createStorage() (storage.FullStorage, error) {
	switch cli.config.Storage.Type {
	case "duckdb":
		return storage.NewDuckDBStorage(cli.config.Storage.Path, cli.logs.Logger())
	case "memory", "":
		return storage.NewMemoryStorage(cli.logs.Logger()), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cli.config.Storage.Type)
	}
}

// loadDataset reads a CSV file for the analytics commands. CSV parsing
// yields text columns only, so the cleaner runs on every load to repair
// column types; on already-clean input the pass changes nothing.
func (cli *CLI) loadDataset(ctx context.Context, path string) (*models.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("--input is required")
	}
	raw, err := source.FromCSV(path)
	if err != nil {
		return nil, err
	}
	cfg := cli.config.Cleaner
	c := cleaner.New(cleaner.Config{
		MaxMissingFraction:       cfg.MaxMissingFraction,
		LowMissingThreshold:      cfg.LowMissingThreshold,
		CategoricalFillThreshold: cfg.CategoricalFillThreshold,
		Interpolation:            cfg.Interpolation,
	}, nil, cli.logs.Logger())
	ds, _, err := c.Clean(ctx, raw)
	return ds, err
}

// fetchFlags holds parsed flags for the fetch command.
type fetchFlags struct {
	Output    string
	Synthetic bool
	Countries int
	Days      int
	Seed      int64
	NoCache   bool
	Help      bool
}

func (cli *CLI) handleFetch(ctx context.Context, args []string) error {
	flags := &fetchFlags{Output: "data/raw.csv", Days: 365, Seed: 42}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--output", "-o":
			if i+1 >= len(args) {
				return fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--synthetic":
			flags.Synthetic = true
		case "--countries":
			if i+1 >= len(args) {
				return fmt.Errorf("--countries requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid countries value: %w", err)
			}
			flags.Countries = n
			i++
		case "--days", "-d":
			if i+1 >= len(args) {
				return fmt.Errorf("--days requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid days value: %w", err)
			}
			flags.Days = n
			i++
		case "--seed":
			if i+1 >= len(args) {
				return fmt.Errorf("--seed requires a value")
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed value: %w", err)
			}
			flags.Seed = n
			i++
		case "--no-cache":
			flags.NoCache = true
		case "--help", "-h":
			flags.Help = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if flags.Help {
		printCommandHelp("fetch")
		return nil
	}

	var ds *models.Dataset
	if flags.Synthetic {
		ds = source.Synthetic(flags.Countries, flags.Days, flags.Seed)
	} else {
		var cache *source.Cache
		if cli.config.Cache.Enabled && !flags.NoCache {
			var err error
			cache, err = source.NewCache(cli.config.Cache.Dir, cli.config.Cache.CacheTTL(), cli.logs.Logger())
			if err != nil {
				return err
			}
		}
		adapter := source.NewAdapter(cli.config.Source, cache, cli.logs.Logger())
		var err error
		ds, err = adapter.Fetch(ctx)
		if err != nil {
			return err
		}
	}

	if err := cli.exporter.ExportCSV(flags.Output, ds); err != nil {
		return err
	}
	fmt.Printf("Fetched %d rows across %d columns to %s\n", ds.NumRows(), ds.NumColumns(), flags.Output)
	return nil
}

// cleanFlags holds parsed flags for the clean command.
type cleanFlags struct {
	Input  string
	Output string
	Store  bool
	Help   bool
}

func (cli *CLI) handleClean(ctx context.Context, args []string) error {
	flags := &cleanFlags{Output: "data/cleaned.csv"}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--output", "-o":
			if i+1 >= len(args) {
				return fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--store":
			flags.Store = true
		case "--help", "-h":
			flags.Help = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if flags.Help {
		printCommandHelp("clean")
		return nil
	}
	if flags.Input == "" {
		return fmt.Errorf("--input is required")
	}

	var store storage.FullStorage
	if flags.Store {
		var err error
		store, err = cli.createStorage()
		if err != nil {
			return err
		}
		if err := store.Initialize(ctx); err != nil {
			return err
		}
		defer store.Close()
	}

	src := fileSource{path: flags.Input}
	p := pipeline.New(src, cli.config.Cleaner, store, cli.logs.Logger())
	result, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if err := cli.exporter.ExportCSV(flags.Output, result.Cleaned); err != nil {
		return err
	}

	rep := result.Report
	fmt.Printf("Cleaned %d rows to %d (run %s, %v)\n", rep.RowsBefore, rep.RowsAfter, result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Printf("  duplicates removed:    %d\n", rep.DuplicatesRemoved)
	fmt.Printf("  invalid dates dropped: %d\n", rep.InvalidDatesDropped)
	fmt.Printf("  negatives clamped:     %d\n", rep.NegativesClamped)
	if len(rep.DroppedColumns) > 0 {
		fmt.Printf("  columns dropped:       %v\n", rep.DroppedColumns)
	}
	for col, strategy := range rep.Filled {
		fmt.Printf("  filled %-20s %s\n", col+":", strategy)
	}
	if missing := quality.TotalMissingDays(result.Coverage); missing > 0 {
		fmt.Printf("  date gaps:             %d missing days across %d locations\n", missing, len(result.Coverage))
	}
	return nil
}

// fileSource adapts a CSV file into a pipeline source.
type fileSource struct {
	path string
}

func (f fileSource) Fetch(ctx context.Context) (*models.Dataset, error) {
	return source.FromCSV(f.path)
}

// metricsFlags holds parsed flags for the metrics command.
type metricsFlags struct {
	Input   string
	Metric  string
	Column  string
	Country string
	Window  int
	Start   string
	End     string
	Help    bool
}

func (cli *CLI) handleMetrics(ctx context.Context, args []string) error {
	flags := &metricsFlags{Metric: "mortality", Column: "new_cases", Window: 7}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--metric", "-m":
			if i+1 >= len(args) {
				return fmt.Errorf("--metric requires a value")
			}
			flags.Metric = args[i+1]
			i++
		case "--column":
			if i+1 >= len(args) {
				return fmt.Errorf("--column requires a value")
			}
			flags.Column = args[i+1]
			i++
		case "--country", "-c":
			if i+1 >= len(args) {
				return fmt.Errorf("--country requires a value")
			}
			flags.Country = args[i+1]
			i++
		case "--window", "-w":
			if i+1 >= len(args) {
				return fmt.Errorf("--window requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid window value: %w", err)
			}
			flags.Window = n
			i++
		case "--start", "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end", "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if flags.Help {
		printCommandHelp("metrics")
		return nil
	}

	ds, err := cli.loadDataset(ctx, flags.Input)
	if err != nil {
		return err
	}
	dr, err := parseDateRange(flags.Start, flags.End)
	if err != nil {
		return err
	}
	calc := analytics.NewCalculator(ds, cli.logs.Logger())

	switch flags.Metric {
	case "mortality":
		fmt.Printf("Mortality rate: %.2f%%\n", calc.MortalityRate(flags.Country, dr))
	case "cfr":
		fmt.Printf("Case fatality rate: %.2f%%\n", calc.CaseFatalityRate(flags.Country, dr))
	case "growth":
		series, err := calc.GrowthRate(flags.Column, flags.Country, flags.Window)
		if err != nil {
			return err
		}
		printSeries(series, "%")
	case "average":
		series, err := calc.DailyAverage(flags.Column, flags.Country, flags.Window)
		if err != nil {
			return err
		}
		printSeries(series, "")
	case "totals":
		totals, err := calc.TotalByCountry(flags.Column)
		if err != nil {
			return err
		}
		for _, t := range totals {
			fmt.Printf("%-30s %.0f\n", t.Location, t.Value)
		}
	default:
		return fmt.Errorf("unknown metric %q, must be: mortality, cfr, growth, average, totals", flags.Metric)
	}
	return nil
}

// trendFlags holds parsed flags for the trend command.
type trendFlags struct {
	Input     string
	Metric    string
	Country   string
	Window    int
	Threshold float64
	Peaks     bool
	Anomalies bool
	Help      bool
}

func (cli *CLI) handleTrend(ctx context.Context, args []string) error {
	cfg := cli.config.Analytics
	flags := &trendFlags{Metric: "new_cases", Window: cfg.TrendWindow, Threshold: cfg.TrendThreshold}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--metric", "-m":
			if i+1 >= len(args) {
				return fmt.Errorf("--metric requires a value")
			}
			flags.Metric = args[i+1]
			i++
		case "--country", "-c":
			if i+1 >= len(args) {
				return fmt.Errorf("--country requires a value")
			}
			flags.Country = args[i+1]
			i++
		case "--window", "-w":
			if i+1 >= len(args) {
				return fmt.Errorf("--window requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid window value: %w", err)
			}
			flags.Window = n
			i++
		case "--threshold", "-t":
			if i+1 >= len(args) {
				return fmt.Errorf("--threshold requires a value")
			}
			f, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return fmt.Errorf("invalid threshold value: %w", err)
			}
			flags.Threshold = f
			i++
		case "--peaks":
			flags.Peaks = true
		case "--anomalies":
			flags.Anomalies = true
		case "--help", "-h":
			flags.Help = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if flags.Help {
		printCommandHelp("trend")
		return nil
	}

	ds, err := cli.loadDataset(ctx, flags.Input)
	if err != nil {
		return err
	}
	detector := analytics.NewDetector(ds, analytics.DetectorConfig{
		Window:    flags.Window,
		Threshold: flags.Threshold,
	}, cli.logs.Logger())

	summary, err := detector.Summary(flags.Metric, flags.Country)
	if err != nil {
		return err
	}
	fmt.Printf("Trend for %s", flags.Metric)
	if flags.Country != "" {
		fmt.Printf(" in %s", flags.Country)
	}
	fmt.Printf(": %s\n", summary.Trend)
	fmt.Printf("  change:        %+.1f%%\n", summary.Change*100)
	fmt.Printf("  current value: %.0f\n", summary.CurrentValue)
	fmt.Printf("  rolling avg:   %.1f\n", summary.RollingAvg)
	if !summary.Date.IsZero() {
		fmt.Printf("  as of:         %s\n", summary.Date.Format(models.DateFormat))
	}

	if flags.Peaks {
		peaks, err := detector.DetectPeaks(flags.Metric, flags.Country, cfg.PeakProminence)
		if err != nil {
			return err
		}
		fmt.Printf("\nPeaks (%d):\n", len(peaks))
		for _, p := range peaks {
			fmt.Printf("  %s  %-30s %.0f\n", p.Date.Format(models.DateFormat), p.Location, p.Value)
		}
	}
	if flags.Anomalies {
		anomalies, err := detector.DetectAnomalies(flags.Metric, flags.Country, cfg.AnomalyStdThreshold)
		if err != nil {
			return err
		}
		fmt.Printf("\nAnomalies (%d):\n", len(anomalies))
		for _, a := range anomalies {
			fmt.Printf("  %s  %-30s %.0f (z=%.2f)\n", a.Date.Format(models.DateFormat), a.Location, a.Value, a.ZScore)
		}
	}
	return nil
}

// exportFlags holds parsed flags for the export command.
type exportFlags struct {
	Input  string
	Output string
	Format string
	Help   bool
}

func (cli *CLI) handleExport(ctx context.Context, args []string) error {
	flags := &exportFlags{Format: "csv"}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--output", "-o":
			if i+1 >= len(args) {
				return fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--format", "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("--format requires a value")
			}
			if args[i+1] != "csv" && args[i+1] != "json" {
				return fmt.Errorf("invalid format, must be: csv or json")
			}
			flags.Format = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if flags.Help {
		printCommandHelp("export")
		return nil
	}
	if flags.Output == "" {
		return fmt.Errorf("--output is required")
	}

	ds, err := cli.loadDataset(ctx, flags.Input)
	if err != nil {
		return err
	}

	switch flags.Format {
	case "json":
		report := struct {
			*models.QualityReport
			Coverage []quality.Coverage `json:"coverage"`
		}{
			QualityReport: models.Quality(ds),
			Coverage:      quality.NewDetector(cli.logs.Logger()).DetectGaps(ds),
		}
		if err := cli.exporter.ExportJSON(flags.Output, report); err != nil {
			return err
		}
	default:
		if err := cli.exporter.ExportCSV(flags.Output, ds); err != nil {
			return err
		}
	}
	fmt.Printf("Exported %d rows to %s\n", ds.NumRows(), flags.Output)
	return nil
}

func parseDateRange(start, end string) (*analytics.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	dr := &analytics.DateRange{}
	var err error
	if start != "" {
		dr.Start, err = time.Parse(models.DateFormat, start)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format, use YYYY-MM-DD: %w", err)
		}
	}
	if end != "" {
		dr.End, err = time.Parse(models.DateFormat, end)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format, use YYYY-MM-DD: %w", err)
		}
	}
	return dr, nil
}

func printSeries(s *analytics.Series, unit string) {
	for i := 0; i < s.Len(); i++ {
		if !s.Defined(i) {
			continue
		}
		fmt.Printf("%s  %-30s %.2f%s\n", s.Dates[i].Format(models.DateFormat), s.Locations[i], s.Values[i], unit)
	}
}

func printUsage() {
	fmt.Printf(`%s - COVID Analytics CLI v%s

USAGE:
    %s <command> [options]

COMMANDS:
    fetch       Fetch the public dataset (or generate synthetic data)
    clean       Run the cleaning pipeline over a raw CSV
    metrics     Compute epidemiological metrics from cleaned data
    trend       Classify trends, find peaks and anomalies
    export      Export a dataset as CSV or a quality summary as JSON

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Generate a year of deterministic synthetic data
    %s fetch --synthetic --output data/raw.csv

    # Clean raw data and persist it to the configured storage backend
    %s clean --input data/raw.csv --output data/cleaned.csv --store

    # Global mortality rate snapshot
    %s metrics --input data/cleaned.csv --metric mortality

    # Weekly trend for new cases in France, with peak detection
    %s trend --input data/cleaned.csv --metric new_cases --country France --peaks

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (JSON format)
    - Environment variables: COVID_* (e.g., COVID_STORAGE_TYPE)

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, AppName, ConfigFile, AppName)
}

func printCommandHelp(command string) {
	switch command {
	case "fetch":
		fmt.Printf(`%s fetch - Fetch or generate a raw dataset

USAGE:
    %s fetch [options]

OPTIONS:
    --output, -o <path>   Output CSV path (default: data/raw.csv)
    --synthetic           Generate deterministic synthetic data instead
                          of downloading
    --countries <n>       Number of synthetic countries (default: all)
    --days, -d <n>        Number of synthetic days (default: 365)
    --seed <n>            Synthetic generator seed (default: 42)
    --no-cache            Bypass the disk cache for this fetch
    --help, -h            Show this help message
`, AppName, AppName)
	case "clean":
		fmt.Printf(`%s clean - Run the cleaning pipeline

USAGE:
    %s clean [options]

OPTIONS:
    --input, -i <path>    Raw CSV to clean (required)
    --output, -o <path>   Cleaned CSV path (default: data/cleaned.csv)
    --store               Also persist the cleaned rows to the configured
                          storage backend
    --help, -h            Show this help message
`, AppName, AppName)
	case "metrics":
		fmt.Printf(`%s metrics - Compute epidemiological metrics

USAGE:
    %s metrics [options]

OPTIONS:
    --input, -i <path>    Cleaned CSV to analyze (required)
    --metric, -m <name>   mortality, cfr, growth, average, totals
                          (default: mortality)
    --column <name>       Metric column for growth/average/totals
                          (default: new_cases)
    --country, -c <name>  Filter to one location
    --window, -w <n>      Window for growth/average (default: 7)
    --start, -s <date>    Range start, YYYY-MM-DD (inclusive)
    --end, -e <date>      Range end, YYYY-MM-DD (inclusive)
    --help, -h            Show this help message
`, AppName, AppName)
	case "trend":
		fmt.Printf(`%s trend - Classify trends, find peaks and anomalies

USAGE:
    %s trend [options]

OPTIONS:
    --input, -i <path>     Cleaned CSV to analyze (required)
    --metric, -m <name>    Metric column (default: new_cases)
    --country, -c <name>   Filter to one location
    --window, -w <n>       Rolling window (default: from config)
    --threshold, -t <f>    Fractional change threshold (default: 0.1)
    --peaks                Also report prominent peaks
    --anomalies            Also report z-score outliers
    --help, -h             Show this help message
`, AppName, AppName)
	case "export":
		fmt.Printf(`%s export - Export pipeline output

USAGE:
    %s export [options]

OPTIONS:
    --input, -i <path>    Dataset CSV to export (required)
    --output, -o <path>   Output path (required)
    --format, -f <fmt>    csv (dataset) or json (quality summary)
    --help, -h            Show this help message
`, AppName, AppName)
	default:
		fmt.Fprintf(os.Stderr, "No help available for command: %s\n", command)
		printUsage()
	}
}
