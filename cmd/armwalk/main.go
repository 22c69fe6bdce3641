// Command armwalk runs scenario files through the two-stage ARMv9 address
// translation walker and writes the result as JSON, an HTML report, a
// terminal trace, or both.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/hemindesai04/page-table-walker/internal/cliconfig"
	"github.com/hemindesai04/page-table-walker/internal/cliutil"
	htmlrender "github.com/hemindesai04/page-table-walker/internal/render/html"
	"github.com/hemindesai04/page-table-walker/internal/render/terminal"
	"github.com/hemindesai04/page-table-walker/internal/report"
	"github.com/hemindesai04/page-table-walker/internal/scenario"

	armwalk "github.com/hemindesai04/page-table-walker"
)

func main() {
	if err := run(); err != nil {
		var exitErr *cliutil.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "armwalk: %v\n", exitErr.Unwrap())
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "armwalk: %v\n", err)
		os.Exit(cliutil.ExitFailure)
	}
}

func run() error {
	output := flag.String("output", "results", "Directory to write result files into")
	format := flag.String("format", "terminal", "Output format: terminal, html, both, json, interactive")
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	tree := flag.Bool("tree", false, "Render the walk trace as a tree instead of a flat list")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <scenario.json | directory>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Walk the two-stage ARMv9 address translation described by a scenario file.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		return cliutil.Exit(cliutil.ExitUsage, fmt.Errorf("exactly one scenario path or directory required"))
	}
	target := args[0]

	paths, err := scenarioPaths(target)
	if err != nil {
		return cliutil.Exit(cliutil.ExitUsage, err)
	}
	if len(paths) == 0 {
		return cliutil.Exit(cliutil.ExitUsage, fmt.Errorf("no scenario files found at %s", target))
	}

	siteCfg := cliconfig.Load(filepath.Dir(paths[0]))
	applySiteDefaults(siteCfg, output, format)

	if *format == "interactive" {
		if len(paths) != 1 {
			return cliutil.Exit(cliutil.ExitUsage, fmt.Errorf("--format interactive requires a single scenario file"))
		}
		return runInteractive(paths[0])
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		return cliutil.Exit(cliutil.ExitFailure, fmt.Errorf("create output directory: %w", err))
	}

	var bar *progressbar.ProgressBar
	if !*quiet && len(paths) > 1 {
		bar = progressbar.Default(int64(len(paths)), "walking scenarios")
	}

	type outcome struct {
		path string
		err  error
	}

	workers := min(runtime.NumCPU(), len(paths))
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan string, len(paths))
	results := make(chan outcome, len(paths))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				err := processOne(p, *output, *format, *tree, *quiet || len(paths) > 1, siteCfg.Color)
				if bar != nil {
					_ = bar.Add(1)
				}
				results <- outcome{path: p, err: err}
			}
		}()
	}
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
	close(results)

	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			slog.Error("scenario failed", "path", r.path, "error", r.err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(paths) == 1 {
		// Single-scenario runs surface the cause directly, with CONFIG
		// errors mapped to the usage exit code.
		var cfgErr *scenario.ConfigError
		if errors.As(errs[0], &cfgErr) {
			return cliutil.Exit(cliutil.ExitUsage, errs[0])
		}
		return cliutil.Exit(cliutil.ExitFailure, errs[0])
	}
	return cliutil.Exit(cliutil.ExitFailure, fmt.Errorf("%d of %d scenarios failed", len(errs), len(paths)))
}

func applySiteDefaults(cfg cliconfig.Config, output, format *string) {
	if !isFlagSet("output") && cfg.OutputDir != "" {
		*output = cfg.OutputDir
	}
	if !isFlagSet("format") && cfg.Format != "" {
		*format = cfg.Format
	}
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// scenarioPaths resolves the positional argument: a single scenario file, a
// directory of scenario files, or a glob pattern.
func scenarioPaths(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		matches, globErr := filepath.Glob(target)
		if globErr != nil || len(matches) == 0 {
			return nil, fmt.Errorf("stat %s: %w", target, err)
		}
		return matches, nil
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", target, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(target, e.Name()))
		}
	}
	return paths, nil
}

func processOne(path, outputDir, format string, tree, silent bool, colorOverride *bool) error {
	sc, err := scenario.Load(path)
	if err != nil {
		var cfgErr *scenario.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		return fmt.Errorf("load scenario %s: %w", path, err)
	}

	doc := armwalk.WalkScenario(sc, time.Now())
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch format {
	case "json":
		return writeJSON(outputDir, base, *doc)
	case "html":
		return writeHTML(outputDir, base, *doc)
	case "both":
		if err := writeJSON(outputDir, base, *doc); err != nil {
			return err
		}
		return writeHTML(outputDir, base, *doc)
	case "terminal":
		return writeTerminal(outputDir, base, *doc, tree, silent, colorOverride)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeJSON(outputDir, base string, doc report.Document) error {
	data, err := report.MarshalIndent(doc)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, base+".json"), data, 0o644)
}

func writeHTML(outputDir, base string, doc report.Document) error {
	f, err := os.Create(filepath.Join(outputDir, base+".html"))
	if err != nil {
		return fmt.Errorf("create html output: %w", err)
	}
	defer f.Close()
	return htmlrender.Render(f, doc)
}

func writeTerminal(outputDir, base string, doc report.Document, tree, silent bool, colorOverride *bool) error {
	f, err := os.Create(filepath.Join(outputDir, base+".txt"))
	if err != nil {
		return fmt.Errorf("create terminal output: %w", err)
	}
	defer f.Close()
	opts := terminal.Options{Tree: tree, Color: colorOverride}
	if err := terminal.Render(f, doc, os.Environ(), opts); err != nil {
		return err
	}
	if !silent && term.IsTerminal(int(os.Stdout.Fd())) {
		return terminal.Render(os.Stdout, doc, os.Environ(), opts)
	}
	return nil
}

// runInteractive launches a line-oriented REPL over an already-computed
// walk trace: it steps through the immutable event list one event at a
// time rather than re-running the walk, since the trace is fully
// materialized by this point.
func runInteractive(path string) error {
	doc, err := armwalk.Walk(path)
	if err != nil {
		var cfgErr *scenario.ConfigError
		if errors.As(err, &cfgErr) {
			return cliutil.Exit(cliutil.ExitUsage, err)
		}
		return cliutil.Exit(cliutil.ExitFailure, err)
	}

	fmt.Printf("loaded %s: %d events, status %s\n", doc.ScenarioName, len(doc.WalkTrace.Events), doc.Result.Status)
	fmt.Println("commands: next, list, fault, perms, quit")

	cursor := 0
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "next":
			if cursor >= len(doc.WalkTrace.Events) {
				fmt.Println("(end of trace)")
				continue
			}
			ev := doc.WalkTrace.Events[cursor]
			fmt.Printf("[%d] S%d L%d idx=%s %s -> %s (%s)\n",
				ev.EventID, ev.Stage, ev.Level, ev.Index, ev.Address, ev.Output, ev.Result)
			cursor++
		case "list":
			for _, ev := range doc.WalkTrace.Events {
				fmt.Printf("[%d] S%d L%d %s\n", ev.EventID, ev.Stage, ev.Level, ev.Result)
			}
		case "fault":
			if doc.Fault == nil {
				fmt.Println("no fault")
			} else {
				fmt.Printf("%s: %s\n", doc.Fault.Kind, doc.Fault.Message)
			}
		case "perms":
			if doc.FinalPerms == nil {
				fmt.Println("no final permissions (walk did not succeed)")
			} else {
				data, _ := json.MarshalIndent(doc.FinalPerms, "", "  ")
				fmt.Println(string(data))
			}
		case "quit", "exit":
			return nil
		default:
			fmt.Println("unknown command")
		}
	}
	return nil
}
