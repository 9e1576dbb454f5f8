package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/corpus"
	"github.com/vhibench/vhibench/internal/tool"
	"github.com/vhibench/vhibench/internal/trace"
)

// trialFunc runs one tool invocation against a repository directory.
type trialFunc func(ctx context.Context, workDir, traceName string) (*trace.Record, error)

// Sweeper drives the version-count sweep for repositories in one corpus:
// for each count it activates that many versions, then runs the tool the
// configured number of times under a cache-defeating scratch name.
type Sweeper struct {
	CorpusDir     string
	VersionCounts []int
	Runs          int
	KeepTraces    bool
	Tags          trace.Tags

	trial trialFunc // replaced for testing
}

// NewSweeper wires a Sweeper from the loaded config and a tool runner.
func NewSweeper(cfg *config.Config, r *tool.Runner) *Sweeper {
	return &Sweeper{
		CorpusDir:     cfg.Corpus.Dir,
		VersionCounts: cfg.Sweep.VersionCounts,
		Runs:          cfg.Sweep.Runs,
		KeepTraces:    cfg.Sweep.KeepTraces,
		Tags: trace.Tags{
			NoMultithreading: r.NoMultithreading,
			ScannerOff:       cfg.ScannerOff,
		},
		trial: r.Run,
	}
}

// ToolRunner builds the tool invocation settings from the config.
func ToolRunner(cfg *config.Config) *tool.Runner {
	return &tool.Runner{
		Path:             cfg.Tool.Path,
		Image:            cfg.Tool.Image,
		NoMultithreading: cfg.Tool.NoMultithreading,
		Env:              cfg.Tool.Env,
		EnvFile:          cfg.Tool.EnvFile,
		Timeout:          time.Duration(cfg.Tool.TimeoutMinutes) * time.Minute,
		CPULimit:         cfg.Tool.CPULimit,
		MemoryLimit:      cfg.Tool.MemoryLimitMB * 1024 * 1024,
	}
}

// Sweep runs the full sweep against one repository and returns the records
// in execution order. A repository with fewer versions than a requested
// count ends that repository's sweep early with every version active. On a
// trial failure the records captured so far are returned alongside the
// error, with the repository back under its canonical name.
func (s *Sweeper) Sweep(ctx context.Context, repo string) ([]trace.Record, error) {
	var records []trace.Record
	repoDir := filepath.Join(s.CorpusDir, repo)

	for _, count := range s.VersionCounts {
		achieved, err := corpus.SetActiveCount(repoDir, count)
		if err != nil {
			return records, err
		}
		if !achieved {
			fmt.Printf("%s: fewer than %d versions, sweep done\n", repo, count)
			break
		}
		for run := 1; run <= s.Runs; run++ {
			fmt.Printf("starting %s (%d versions) run %d\n", repo, count, run)
			rec, err := s.runTrial(ctx, repo, count, run)
			if err != nil {
				return records, err
			}
			records = append(records, *rec)
		}
	}
	return records, nil
}

// runTrial renames the repository to its scratch name, invokes the tool,
// and tags the parsed telemetry. The scratch rename is always undone and a
// transient telemetry file never outlives the trial, failure included.
func (s *Sweeper) runTrial(ctx context.Context, repo string, count, run int) (_ *trace.Record, err error) {
	workName := corpus.WorkName(repo, run)
	if err := corpus.RenameRepo(s.CorpusDir, repo, workName); err != nil {
		return nil, err
	}
	workDir := filepath.Join(s.CorpusDir, workName)

	traceName := trace.TempFileName
	if s.KeepTraces {
		traceName = trace.SweepFileName(s.Tags, count, run)
	}

	defer func() {
		if !s.KeepTraces || err != nil {
			if rmErr := os.Remove(filepath.Join(workDir, traceName)); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("warning: removing %s: %v", traceName, rmErr)
			}
		}
		if renameErr := corpus.RenameRepo(s.CorpusDir, workName, repo); renameErr != nil {
			if err == nil {
				err = renameErr
			} else {
				log.Printf("warning: %v", renameErr)
			}
		}
	}()

	rec, err := s.trial(ctx, workDir, traceName)
	if err != nil {
		return nil, fmt.Errorf("%s (%d versions) run %d: %w", repo, count, run, err)
	}
	rec.Name = repo
	rec.Run = run
	return rec, nil
}

// Restore renames any scratch directories left by an interrupted sweep back
// to their canonical names and removes leftover transient telemetry files
// from every repository.
func Restore(corpusDir string) ([]string, error) {
	repos, err := corpus.Repos(corpusDir)
	if err != nil {
		return nil, err
	}
	var restored []string
	for _, name := range repos {
		base, _, ok := corpus.ParseWorkName(name)
		if !ok {
			continue
		}
		if err := corpus.RenameRepo(corpusDir, name, base); err != nil {
			return restored, err
		}
		restored = append(restored, base)
	}
	repos, err = corpus.Repos(corpusDir)
	if err != nil {
		return restored, err
	}
	for _, name := range repos {
		tempPath := filepath.Join(corpusDir, name, trace.TempFileName)
		if rmErr := os.Remove(tempPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("warning: removing %s: %v", tempPath, rmErr)
		}
	}
	return restored, nil
}
