package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chkao831/Autotuning/internal/command"
	"github.com/chkao831/Autotuning/internal/config"
	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/history"
	"github.com/chkao831/Autotuning/internal/results"
	"github.com/chkao831/Autotuning/internal/sweep"
	"github.com/chkao831/Autotuning/internal/tuner"
	"github.com/chkao831/Autotuning/internal/version"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "sweep":
		return handleSweep(ctx, args[1:], stderr)
	case "nightly":
		return handleNightly(ctx, args[1:], stderr)
	case "history":
		return handleHistory(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return exitOK
	case "help", "-h", "-help", "--help":
		printUsage(stdout)
		return exitOK
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
	printUsage(stderr)
	return exitUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `autotune - smoother parameter tuning for ctest-driven solver cases

Usage: autotune <command> [options]

Commands:
  sweep     Run a grid or random sweep: autotune sweep [flags] <deck.yaml>
  nightly   Advance the nightly search: autotune nightly [flags] <deck.yaml> <report.json> <casename>
  history   Show or export the nightly history
  version   Show autotune version
  help      Show this help message

Examples:
  # Grid sweep over the smoother groups in tune.yaml, 3 rounds each
  autotune sweep -config tune.yaml -rounds 3 input_albany_Velocity_MueLu_Wedge_Tune.yaml

  # Grid sweep over an explicit damping list
  autotune sweep -config tune.yaml -values 'relaxation: damping factor=0.8,0.9,1.0' input.yaml

  # Seeded random search with 20 samples
  autotune sweep -config tune.yaml -mode random -samples 20 -seed 7 input.yaml

  # Nightly step after the nightly ctest run
  autotune nightly -config tune.yaml input.yaml ctest.json Velocity_MueLu_Wedge_Tune`)
}

func handleSweep(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Tuning config file (.yaml, .yml or .json, required)")
	mode := fs.String("mode", "", "Sweep mode: 'grid' or 'random' (overrides config)")
	samples := fs.Int("samples", 0, "Number of random samples (overrides config)")
	seed := fs.Uint64("seed", 0, "Random seed (overrides config; time-based when unset)")
	rounds := fs.Int("rounds", 0, "Rounds per experiment; durations are the median across rounds")
	label := fs.String("label", "", "ctest label of the tuning case (overrides config)")
	timeout := fs.Duration("timeout", 0, "Per-run ctest timeout (overrides config)")
	output := fs.String("output", "", "Output CSV filename (defaults to <deck stem>.csv)")
	chartHTML := fs.String("chart-html", "", "Write an HTML bar chart of passed experiments")
	chartPNG := fs.String("chart-png", "", "Write a PNG bar chart of passed experiments")
	dir := fs.String("dir", ".", "ctest build directory")
	caseName := fs.String("case", "", "ctest case name (resolved from CTestTestfile.cmake when empty)")
	values := fs.String("values", "", "Override param candidates: 'name=0.8,0.9;mS1::name=0.4:1.7:0.1'")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, code := loadConfig(*configPath, stderr)
	if cfg == nil {
		return code
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["mode"] {
		cfg.Mode = mode
	}
	if set["samples"] {
		cfg.Samples = samples
	}
	if set["seed"] {
		cfg.Seed = seed
	}
	if set["rounds"] {
		cfg.Rounds = rounds
	}
	if set["label"] {
		cfg.Harness.Label = label
	}
	if set["timeout"] {
		d := timeout.String()
		cfg.Harness.Timeout = &d
	}
	if set["output"] {
		cfg.Output = output
	}
	if set["chart-html"] {
		cfg.ChartHTML = chartHTML
	}
	if set["chart-png"] {
		cfg.ChartPNG = chartPNG
	}
	if set["case"] {
		cfg.Harness.Case = caseName
	}
	if set["values"] {
		groups, err := sweep.OverrideValues(cfg.Groups, *values)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		cfg.Groups = groups
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	deckArg := cfg.GetDeck()
	if fs.NArg() > 0 {
		deckArg = fs.Arg(0)
	}
	if deckArg == "" || fs.NArg() > 1 {
		fmt.Fprintln(stderr, "Error: exactly one input deck is required")
		fs.Usage()
		return exitUsage
	}
	if !strings.HasSuffix(deckArg, ".yaml") {
		fmt.Fprintf(stderr, "Error: input deck must have .yaml extension, got %q\n", deckArg)
		return exitUsage
	}

	groups, err := cfg.CompileGroups()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	deckPath := inDir(*dir, deckArg)
	stem := deck.Stem(deckPath)
	osfs := fsutil.OSFileSystem{}
	h := newHarness(cfg, osfs, *dir, stem)

	s := &tuner.Sweep{
		FS:        osfs,
		Harness:   h,
		DeckPath:  deckPath,
		Factories: cfg.GetDeckPath(),
		Groups:    groups,
		Mode:      cfg.GetMode(),
		Samples:   cfg.GetSamples(),
		Seed:      cfg.GetSeed(),
		Rounds:    cfg.GetRounds(),
		CaseName:  cfg.Harness.GetCase(),
		Metadata:  inDir(*dir, cfg.Harness.GetMetadata()),
		Metric:    cfg.GetMetric(),
		Output:    cfg.GetOutput(filepath.Join(filepath.Dir(deckPath), stem)),
		ChartHTML: cfg.GetChartHTML(),
		ChartPNG:  cfg.GetChartPNG(),
	}

	start := time.Now()
	table, err := s.Run(ctx)
	if err != nil {
		log.Printf("ERROR: sweep failed: %v", err)
		return exitFatal
	}
	if best, ok := table.Best(); ok {
		log.Printf("Sweep complete in %s. Best experiment %d at %ss: %s",
			time.Since(start).Round(time.Second), best.ID, results.FormatSeconds(best.Primary), best.Assignment)
	} else {
		log.Printf("Sweep complete in %s. No experiment passed.", time.Since(start).Round(time.Second))
	}
	return exitOK
}

func handleNightly(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("nightly", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Tuning config file (.yaml, .yml or .json, required)")
	dbPath := fs.String("db", "", "History database (overrides config)")
	seed := fs.Uint64("seed", 0, "Base random seed; candidate n is drawn with seed+n")
	dir := fs.String("dir", ".", "Directory holding the deck and its copies")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 3 {
		fmt.Fprintln(stderr, "Error: usage: autotune nightly [flags] <deck.yaml> <report.json> <casename>")
		fs.Usage()
		return exitUsage
	}
	deckArg, reportArg, caseName := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	if !strings.HasSuffix(deckArg, ".yaml") {
		fmt.Fprintf(stderr, "Error: input deck must have .yaml extension, got %q\n", deckArg)
		return exitUsage
	}
	if !strings.HasSuffix(reportArg, ".json") {
		fmt.Fprintf(stderr, "Error: ctest report must have .json extension, got %q\n", reportArg)
		return exitUsage
	}

	cfg, code := loadConfig(*configPath, stderr)
	if cfg == nil {
		return code
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.History = dbPath
		case "seed":
			cfg.Seed = seed
		}
	})
	groups, err := cfg.CompileGroups()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	store, err := history.Open(inDir(*dir, cfg.GetHistory()))
	if err != nil {
		log.Printf("ERROR: %v", err)
		return exitFatal
	}
	defer store.Close()

	deckPath := inDir(*dir, deckArg)
	n := &tuner.Nightly{
		FS:        fsutil.OSFileSystem{},
		Store:     store,
		DeckPath:  deckPath,
		Factories: cfg.GetDeckPath(),
		Groups:    groups,
		Seed:      cfg.GetSeed(),
		CaseName:  caseName,
		Metric:    cfg.GetMetric(),
		Artifacts: cfg.Artifacts(filepath.Dir(deckPath), deck.Stem(deckPath)),
	}
	rec, err := n.Step(ctx, inDir(*dir, reportArg))
	if err != nil {
		log.Printf("ERROR: nightly step failed: %v", err)
		return exitFatal
	}
	log.Printf("Next candidate %d: %s", rec.IterID, rec.Assignment)
	return exitOK
}

func handleHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", config.DefaultHistory, "History database")
	caseName := fs.String("case", "", "Case to show (lists cases when empty)")
	csvPath := fs.String("csv", "", "Export the case history to this CSV file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *csvPath != "" && *caseName == "" {
		fmt.Fprintln(stderr, "Error: -csv requires -case")
		return exitUsage
	}
	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(stderr, "Error: history database %s: %v\n", *dbPath, err)
		return exitFatal
	}

	store, err := history.Open(*dbPath)
	if err != nil {
		log.Printf("ERROR: %v", err)
		return exitFatal
	}
	defer store.Close()

	if *caseName == "" {
		if err := listCases(store, stdout); err != nil {
			log.Printf("ERROR: %v", err)
			return exitFatal
		}
		return exitOK
	}

	w := stdout
	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Printf("ERROR: could not create %s: %v", *csvPath, err)
			return exitFatal
		}
		defer f.Close()
		w = f
	}
	if err := store.ExportCSV(w, *caseName); err != nil {
		log.Printf("ERROR: %v", err)
		return exitFatal
	}
	return exitOK
}

func listCases(store *history.Store, w io.Writer) error {
	cases, err := store.Cases()
	if err != nil {
		return err
	}
	for _, name := range cases {
		records, err := store.List(name)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s\t%d iterations", name, len(records))
		best, err := store.Best(name)
		switch {
		case err == nil:
			line += fmt.Sprintf("\tbest %d (%ss)", best.IterID, results.FormatSeconds(best.Outcome.Primary))
		case errors.Is(err, history.ErrNoPassed):
			line += "\tno passed iteration"
		default:
			return err
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func loadConfig(path string, stderr io.Writer) (*config.TuneConfig, int) {
	if path == "" {
		fmt.Fprintln(stderr, "Error: -config is required")
		return nil, exitUsage
	}
	cfg, err := config.LoadTuneConfig(fsutil.OSFileSystem{}, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, exitUsage
	}
	return cfg, exitOK
}

func newHarness(cfg *config.TuneConfig, fsys fsutil.FileSystem, dir, stem string) *ctest.Harness {
	hc := cfg.Harness
	return &ctest.Harness{
		Builder:        command.NewOSBuilder(),
		FS:             fsys,
		Dir:            dir,
		Command:        hc.GetCommand(),
		Label:          hc.GetLabel(),
		Timeout:        hc.GetTimeout(),
		SetupLabel:     hc.GetSetupLabel(),
		SetupMarker:    hc.GetSetupMarker(),
		LastLog:        hc.GetLastLog(),
		ConvertCommand: hc.GetConvert(),
		Artifacts:      cfg.Artifacts(dir, stem),
	}
}

func inDir(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
