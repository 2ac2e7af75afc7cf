// Package cli wires the reduce, bin, map, and find-example-line subcommands
// into a single urfave/cli application.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/dandi-archive/s3logreduce/bin"
	"github.com/dandi-archive/s3logreduce/catalog"
	"github.com/dandi-archive/s3logreduce/config"
	"github.com/dandi-archive/s3logreduce/diagnostics"
	"github.com/dandi-archive/s3logreduce/findline"
	"github.com/dandi-archive/s3logreduce/georegion"
	"github.com/dandi-archive/s3logreduce/ipexclude"
	"github.com/dandi-archive/s3logreduce/mapstage"
	"github.com/dandi-archive/s3logreduce/progress"
	"github.com/dandi-archive/s3logreduce/reduce"
	"github.com/dandi-archive/s3logreduce/s3log"
)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Usage:    "Path to the TOML configuration file",
	Required: true,
}

var heatmapFlag = &cli.StringFlag{
	Name:  "heatmapPath",
	Usage: "Override the config file's heatmap output path",
}

var seedFlag = &cli.Int64Flag{
	Name:  "seed",
	Usage: "Seed for the random number generator",
	Value: 0,
}

var requestTypeFlag = &cli.StringFlag{
	Name:     "requestType",
	Usage:    fmt.Sprintf("Request type to filter for, one of %v", config.RequestTypes),
	Required: true,
}

var tuiFlag = &cli.BoolFlag{
	Name:  "tui",
	Usage: "Show a live terminal dashboard of worker progress while the stage runs",
}

// runWithDashboard runs stage under a live progress.Dashboard when enabled is
// true, wiring it up as attach's worker-pool observer; otherwise it just
// calls run directly. attach is called before run starts so the observer is
// registered on the pool before any task can fire.
func runWithDashboard(enabled bool, stage progress.Stage, attach func(observer *progress.Dashboard), run func() error) error {
	if !enabled {
		return run()
	}

	dashboard := progress.New(stage, 0)
	attach(dashboard)

	runErr := make(chan error, 1)
	go func() {
		err := run()
		dashboard.Stop()
		runErr <- err
	}()

	if err := dashboard.Run(); err != nil {
		return err
	}
	return <-runErr
}

// Version and BuildDate are overridden at build time via -ldflags.
var (
	Version   = "0.0.0-dev"
	BuildDate = ""
)

func loadConfig(c *cli.Context) (config.Config, error) {
	return config.Load(c.String("config"))
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

func newExcludedIPs(cfg config.Config, logger *logrus.Logger) (*ipexclude.Set, error) {
	set := ipexclude.New()
	if err := set.AddAll(cfg.ExcludedIPs); err != nil {
		return nil, err
	}
	if cfg.ExcludeGitHubActionsIPs {
		logger.Info("fetching current GitHub Actions runner IP ranges")
		if err := ipexclude.FetchGitHubActionsRanges(nil, set); err != nil {
			return nil, fmt.Errorf("cli: fetching GitHub Actions IP ranges: %w", err)
		}
	}
	return set, nil
}

func objectKeyHandlerFor(cfg config.Config) s3log.ObjectKeyHandler {
	if cfg.FastPathEligible() {
		return s3log.DANDIObjectKeyHandler
	}
	parents := make(map[string]bool, len(cfg.ObjectKeyParentsToReduce))
	for _, p := range cfg.ObjectKeyParentsToReduce {
		parents[p] = true
	}
	return s3log.ObjectKeyHandlerFunc(func(objectKey string) (string, bool) {
		parent, _, _ := strings.Cut(objectKey, "/")
		return objectKey, parents[parent]
	})
}

func handleReduceCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger()

	excludedIPs, err := newExcludedIPs(cfg, logger)
	if err != nil {
		return err
	}

	reporter, err := diagnostics.New(cfg.BaseFolderPath, cfg.Version)
	if err != nil {
		return err
	}
	defer reporter.Close()

	opts := reduce.BatchOptions{
		RawRootPath:     cfg.RawRootPath,
		ReducedRootPath: cfg.ReducedRootPath,
		Options: s3log.Options{
			OperationType:    cfg.OperationType,
			ObjectKeyHandler: objectKeyHandlerFor(cfg),
			ExcludedIPs:      excludedIPs,
			FastPath:         cfg.FastPathEligible(),
		},
		MaximumBufferSizeInBytes: cfg.MaximumBufferSizeInBytes,
		NumberOfWorkers:          cfg.NumberOfWorkers,
		Reporter:                 reporter,
		Logger:                   logger,
		ExcludedYears:            cfg.ExcludedYears,
	}

	return runWithDashboard(c.Bool("tui"), progress.StageReduce,
		func(dashboard *progress.Dashboard) { opts.Observer = dashboard },
		func() error { return reduce.Batch(opts) })
}

func handleBinCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger()

	reporter, err := diagnostics.New(cfg.BaseFolderPath, cfg.Version)
	if err != nil {
		return err
	}
	defer reporter.Close()

	opts := bin.BatchOptions{
		ReducedRootPath: cfg.ReducedRootPath,
		BinnedRootPath:  cfg.BinnedRootPath,
		NumberOfWorkers: cfg.NumberOfWorkers,
		Reporter:        reporter,
		Logger:          logger,
	}

	return runWithDashboard(c.Bool("tui"), progress.StageBin,
		func(dashboard *progress.Dashboard) { opts.Observer = dashboard },
		func() error { return bin.Batch(opts) })
}

func handleMapCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger()

	var client catalog.Client = catalog.StaticClient{}
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadStaticClient(cfg.CatalogPath)
		if err != nil {
			return err
		}
		client = loaded
	}

	var regionCache *georegion.Cache
	if cfg.RegionCachePath != "" {
		regionCache, err = georegion.LoadCache(cfg.RegionCachePath, []byte(cfg.RegionCacheSalt))
		if err != nil {
			return err
		}
	}

	summaries, err := mapstage.Summarize(cfg.BinnedRootPath, client, regionCache, nil)
	if err != nil {
		return err
	}
	logger.WithField("count", len(summaries)).Info("summarized dataset versions")

	for _, key := range mapstage.SortedKeys(summaries) {
		summary := summaries[key]
		fmt.Printf("%s\trequests=%d\tbytes=%d\n", key, summary.TotalRequests, summary.TotalBytes)
	}

	if regionCache != nil {
		if err := regionCache.Save(cfg.RegionCachePath); err != nil {
			return err
		}
	}

	heatmapPath := c.String("heatmapPath")
	if heatmapPath == "" {
		heatmapPath = cfg.HeatmapPath
	}
	if heatmapPath != "" {
		if err := mapstage.PlotRegionHeatmap(summaries, heatmapPath); err != nil {
			return err
		}
		logger.WithField("path", heatmapPath).Info("wrote region heatmap")
	}

	if cfg.SummaryRootPath != "" {
		report := mapstage.BuildReport(summaries, time.Now(), cfg.Version)
		summaryPath := filepath.Join(cfg.SummaryRootPath, "summary.json")
		if err := os.MkdirAll(cfg.SummaryRootPath, 0o755); err != nil {
			return fmt.Errorf("cli: creating %q: %w", cfg.SummaryRootPath, err)
		}
		if err := mapstage.WriteJSON(report, summaryPath); err != nil {
			return err
		}
		logger.WithField("path", summaryPath).Info("wrote dataset version summary")
	}
	return nil
}

func handleFindExampleLineCommand(c *cli.Context) error {
	line, err := findline.Find(c.String("rawRootPath"), c.String("requestType"), c.Int64("seed"))
	if err != nil {
		return err
	}
	fmt.Println(line)
	return nil
}

func parseDate(d string) time.Time {
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Now()
	}
	return t
}

// App is the top-level CLI entrypoint, registering one command per pipeline
// stage plus the find-example-line testing helper.
var App = &cli.App{
	Name:     "s3logreduce",
	Usage:    "Reduce, bin, and map S3 server-access logs for dataset usage reporting",
	Version:  Version,
	Compiled: parseDate(BuildDate),
	Commands: []*cli.Command{
		{
			Name:   "reduce",
			Usage:  "Reduce raw daily log files into minimal per-day TSV files",
			Flags:  []cli.Flag{configFlag, tuiFlag},
			Action: handleReduceCommand,
		},
		{
			Name:   "bin",
			Usage:  "Group reduced rows by object key across all reduced days",
			Flags:  []cli.Flag{configFlag, tuiFlag},
			Action: handleBinCommand,
		},
		{
			Name:   "map",
			Usage:  "Join binned object keys against the catalog and summarize by dataset version",
			Flags:  []cli.Flag{configFlag, heatmapFlag},
			Action: handleMapCommand,
		},
		{
			Name:  "find-example-line",
			Usage: "Print a randomly chosen, IP-anonymized example line for a request type, for use as a test fixture",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "rawRootPath", Required: true, Usage: "Root of the raw log file tree to search"},
				requestTypeFlag,
				seedFlag,
			},
			Action: handleFindExampleLineCommand,
		},
	},
}

// Run executes the CLI application against the process's arguments.
func Run() {
	if err := App.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error running CLI app:", err)
		os.Exit(1)
	}
}
