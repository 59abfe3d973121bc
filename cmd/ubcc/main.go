// Command ubcc collects Upbit candle history into per-series DuckDB files
// and reports on their completeness.
//
// Usage:
//
//	ubcc collect [flags] COIN   fetch a window of history and reconcile it
//	ubcc status  [flags] COIN   show stored bounds, counts, and gaps
//	ubcc gaps    [flags] COIN   list missing ranges in a window
//	ubcc query   [flags] COIN   print stored candles in a window
//	ubcc export  [flags] COIN   dump stored candles to CSV
//
// COIN is a coin symbol like BTC (quoted in KRW by default) or a full market
// code like USDT-BTC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ubcc/internal/collector"
	"ubcc/internal/config"
	"ubcc/internal/export"
	"ubcc/internal/logger"
	"ubcc/internal/models"
	"ubcc/internal/source"
	"ubcc/internal/store"
	"ubcc/internal/timegrid"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ubcc <collect|status|gaps|query|export> [flags] COIN")
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	dataDir    string
	timeframe  string
	days       int
	verbose    bool
}

func registerCommon(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.configPath, "config", "", "path to JSON config file")
	fs.StringVar(&cf.dataDir, "data-dir", "", "override database directory")
	fs.StringVar(&cf.timeframe, "timeframe", string(timegrid.Day), "candle timeframe (minute1..minute240, day, week, month)")
	fs.IntVar(&cf.days, "days", 30, "window length in days, ending now")
	fs.BoolVar(&cf.verbose, "verbose", false, "enable debug logging")
}

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	series models.Series
	window struct {
		start, end time.Time
	}
}

// setup resolves configuration, logging, and the target series from the
// parsed flags and the positional coin argument.
func setup(cf *commonFlags, args []string) (*app, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one COIN argument")
	}

	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, err
	}
	if cf.dataDir != "" {
		cfg.DataDir = cf.dataDir
	}
	if cf.verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(logger.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	series, err := models.ParseMarket(args[0], timegrid.Timeframe(cf.timeframe))
	if err != nil {
		return nil, err
	}
	if cf.days < 1 {
		return nil, fmt.Errorf("days must be at least 1")
	}

	a := &app{cfg: cfg, log: log, series: series}
	a.window.end = timegrid.Align(series.Timeframe, time.Now().UTC())
	a.window.start = a.window.end.AddDate(0, 0, -cf.days)
	return a, nil
}

func (a *app) openStore() (store.Store, error) {
	name := fmt.Sprintf("%s_%s.db", a.series.Market(), a.series.Timeframe)
	return store.NewDuckDBStore(filepath.Join(a.cfg.DataDir, name), a.log)
}

func (a *app) newCollector(st store.Store) *collector.Collector {
	client := source.NewUpbitClient(a.log,
		source.WithRetryPolicy(a.cfg.Retry),
		source.WithHTTPClient(&http.Client{Timeout: a.cfg.RequestTimeout}))
	return collector.New(client, st, a.series, a.log,
		collector.WithPageSize(a.cfg.PageSize))
}

func run(args []string) error {
	if len(args) < 1 {
		usage()
		return fmt.Errorf("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "collect":
		return runCollect(ctx, rest)
	case "status":
		return runStatus(ctx, rest)
	case "gaps":
		return runGaps(ctx, rest)
	case "query":
		return runQuery(ctx, rest)
	case "export":
		return runExport(ctx, rest)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runCollect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	var cf commonFlags
	registerCommon(fs, &cf)
	resume := fs.Bool("resume", true, "skip ranges already stored from earlier runs")
	timeout := fs.Duration("timeout", 0, "overall deadline for the run (0 means none)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(&cf, fs.Args())
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	result, err := a.newCollector(st).Collect(ctx, collector.CollectRequest{
		Start:  a.window.start,
		End:    a.window.end,
		Resume: *resume,
	})

	fmt.Printf("series:           %s\n", a.series)
	fmt.Printf("stored candles:   %d\n", result.TotalCount)
	fmt.Printf("expected candles: %d\n", result.ExpectedCandles)
	fmt.Printf("order mismatches: %d\n", result.TimestampOrderMismatches)
	fmt.Printf("gaps:             %d\n", len(result.Gaps))
	for _, g := range result.Gaps {
		fmt.Printf("  %s\n", g)
	}
	if result.Partial {
		fmt.Println("note: run stopped early, results cover a partial window")
	}
	return err
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var cf commonFlags
	registerCommon(fs, &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(&cf, fs.Args())
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	status, err := a.newCollector(st).CheckStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("series: %s\n", status.Series)
	if !status.HasData {
		fmt.Println("no data stored")
		return nil
	}
	fmt.Printf("candles: %d\n", status.TotalCount)
	fmt.Printf("oldest:  %s\n", status.Oldest.Format(time.RFC3339))
	fmt.Printf("newest:  %s\n", status.Newest.Format(time.RFC3339))
	fmt.Printf("gaps:    %d\n", len(status.CoveredGaps))
	for _, g := range status.CoveredGaps {
		fmt.Printf("  %s\n", g)
	}
	return nil
}

func runGaps(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gaps", flag.ExitOnError)
	var cf commonFlags
	registerCommon(fs, &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(&cf, fs.Args())
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	found, err := a.newCollector(st).AnalyzeGaps(ctx, a.window.start, a.window.end)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no gaps")
		return nil
	}
	step := a.series.Timeframe.Duration()
	for _, g := range found {
		fmt.Printf("%s spanning %s\n", g, g.Duration(step))
	}
	return nil
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var cf commonFlags
	registerCommon(fs, &cf)
	filterGaps := fs.Bool("filter-gaps", false, "drop rows that break the contiguous grid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(&cf, fs.Args())
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	candles, err := a.newCollector(st).Query(ctx, a.window.start, a.window.end, *filterGaps)
	if err != nil {
		return err
	}
	for _, c := range candles {
		fmt.Println(c)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var cf commonFlags
	registerCommon(fs, &cf)
	outDir := fs.String("out", "", "override export directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(&cf, fs.Args())
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	candles, err := st.Query(ctx, a.window.start, a.window.end)
	if err != nil {
		return err
	}

	dir := a.cfg.ExportDir
	if *outDir != "" {
		dir = *outDir
	}
	path, err := export.NewCSVWriter(dir, a.log).Write(a.series, candles)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d candles to %s\n", len(candles), path)
	return nil
}
