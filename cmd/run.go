package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/corpus"
	"github.com/vhibench/vhibench/internal/report"
	"github.com/vhibench/vhibench/internal/result"
	"github.com/vhibench/vhibench/internal/runner"
	"github.com/vhibench/vhibench/internal/trace"
)

var (
	flagRepo       string
	flagCounts     string
	flagRuns       int
	flagKeepTraces bool
	flagScannerOff bool
	flagParallel   int
	flagKeepGoing  bool
	flagRunFormat  string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep the corpus across version counts",
		RunE:  runSweep,
	}
	cmd.Flags().StringVar(&flagRepo, "repo", "", "filter to a single repository")
	cmd.Flags().StringVar(&flagCounts, "counts", "", "override version counts (comma separated, strictly increasing)")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "override runs per version count")
	cmd.Flags().BoolVar(&flagKeepTraces, "keep-traces", false, "keep per-trial telemetry files in the corpus")
	cmd.Flags().BoolVar(&flagScannerOff, "scanner-off", false, "assert the background file scanner is disabled")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent repository sweeps")
	cmd.Flags().BoolVar(&flagKeepGoing, "keep-going", false, "continue past a failed repository")
	cmd.Flags().StringVar(&flagRunFormat, "format", "table", "summary format (table, csv, json)")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagRuns > 0 {
		cfg.Sweep.Runs = flagRuns
	}
	if flagCounts != "" {
		counts, err := parseCounts(flagCounts)
		if err != nil {
			return err
		}
		cfg.Sweep.VersionCounts = counts
	}
	if flagKeepTraces {
		cfg.Sweep.KeepTraces = true
	}
	if flagScannerOff {
		cfg.ScannerOff = true
	}
	if !cfg.ScannerOff {
		return fmt.Errorf("background file scanning distorts timing: disable it, then pass --scanner-off or set scanner_off in the config")
	}

	repos, err := corpus.Repos(cfg.Corpus.Dir)
	if err != nil {
		return err
	}
	if leftover := scratchNames(repos); len(leftover) > 0 {
		return fmt.Errorf("corpus has leftover scratch directories (%s); run vhibench restore first", strings.Join(leftover, ", "))
	}
	repos = filterRepos(repos, flagRepo)
	if len(repos) == 0 {
		return fmt.Errorf("no repositories to sweep in %s", cfg.Corpus.Dir)
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	ctx := context.Background()
	sweeper := runner.NewSweeper(cfg, runner.ToolRunner(cfg))
	started := time.Now()

	var records []trace.Record
	var failures []string

	if flagParallel > 1 {
		jobs := make([]runner.Job, 0, len(repos))
		for _, repo := range repos {
			repo := repo
			jobs = append(jobs, runner.Job{
				Repo: repo,
				Run:  func() ([]trace.Record, error) { return sweeper.Sweep(ctx, repo) },
			})
		}
		var errs []error
		records, errs = runner.RunPool(flagParallel, jobs)
		for _, err := range errs {
			fmt.Printf("  ERROR: %v\n", err)
			failures = append(failures, err.Error())
		}
	} else {
		for _, repo := range repos {
			recs, err := sweeper.Sweep(ctx, repo)
			records = append(records, recs...)
			// checkpoint after every repository so a later crash loses nothing
			if wErr := result.WriteRecords(runDir, records); wErr != nil {
				return wErr
			}
			if err != nil {
				failures = append(failures, err.Error())
				if !flagKeepGoing {
					writeRunArtifacts(runDir, cfg, repos, records, failures, started)
					return err
				}
				fmt.Printf("  ERROR: %v\n", err)
			}
		}
	}

	if err := writeRunArtifacts(runDir, cfg, repos, records, failures, started); err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	if err := report.TimeSeries(records, report.DefaultStages).Write(os.Stdout, flagRunFormat); err != nil {
		return err
	}
	if len(failures) > 0 && !flagKeepGoing {
		return fmt.Errorf("%d repository sweep(s) failed", len(failures))
	}
	return nil
}

// writeRunArtifacts persists the run's records, manifest, and time-series CSV.
func writeRunArtifacts(runDir string, cfg *config.Config, repos []string, records []trace.Record, failures []string, started time.Time) error {
	if err := result.WriteRecords(runDir, records); err != nil {
		return err
	}
	meta := &result.RunMeta{
		StartedAt:        started.UTC(),
		DurationS:        int(time.Since(started).Seconds()),
		CorpusDir:        cfg.Corpus.Dir,
		Repos:            repos,
		VersionCounts:    cfg.Sweep.VersionCounts,
		Runs:             cfg.Sweep.Runs,
		KeepTraces:       cfg.Sweep.KeepTraces,
		NoMultithreading: cfg.Tool.NoMultithreading,
		ScannerOff:       cfg.ScannerOff,
		Records:          len(records),
		Failures:         failures,
	}
	if err := result.WriteMeta(runDir, meta); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(runDir, "time_vs_versions.csv"))
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()
	return report.TimeSeries(records, report.DefaultStages).WriteCSV(f)
}

// parseCounts parses a comma-separated strictly increasing list of version
// counts.
func parseCounts(s string) ([]int, error) {
	var counts []int
	for i, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("parsing counts %q: %w", s, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("parsing counts %q: %d is not a usable count", s, n)
		}
		if i > 0 && n <= counts[i-1] {
			return nil, fmt.Errorf("parsing counts %q: counts must be strictly increasing", s)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func filterRepos(repos []string, name string) []string {
	if name == "" {
		return repos
	}
	var filtered []string
	for _, r := range repos {
		if r == name {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// scratchNames picks out directories still parked under a cache-bypass work
// name by an interrupted sweep.
func scratchNames(repos []string) []string {
	var scratch []string
	for _, r := range repos {
		if _, _, ok := corpus.ParseWorkName(r); ok {
			scratch = append(scratch, r)
		}
	}
	return scratch
}
