package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/corpus"
	"github.com/vhibench/vhibench/internal/runner"
	"github.com/vhibench/vhibench/internal/trace"
)

var (
	flagSnapVariant    string
	flagSnapRepo       string
	flagSnapScannerOff bool
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture one full-corpus trial per repository under a named variant",
		Long: `Snapshot runs the tool once per repository with every version active and
keeps the variant's fixed telemetry file (perf_trace<suffix>.json) inside the
repository, where the compare command picks it up.`,
		RunE: runSnapshot,
	}
	cmd.Flags().StringVar(&flagSnapVariant, "variant", "", "configured variant to capture (required)")
	cmd.Flags().StringVar(&flagSnapRepo, "repo", "", "filter to a single repository")
	cmd.Flags().BoolVar(&flagSnapScannerOff, "scanner-off", false, "assert the background file scanner is disabled")
	cmd.MarkFlagRequired("variant")
	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagSnapScannerOff {
		cfg.ScannerOff = true
	}
	variant, err := cfg.Variant(flagSnapVariant)
	if err != nil {
		return err
	}
	if variant.ScannerOff && !cfg.ScannerOff {
		return fmt.Errorf("variant %s expects the background file scanner disabled: disable it, then pass --scanner-off or set scanner_off in the config", variant.Name)
	}

	repos, err := corpus.Repos(cfg.Corpus.Dir)
	if err != nil {
		return err
	}
	if leftover := scratchNames(repos); len(leftover) > 0 {
		return fmt.Errorf("corpus has leftover scratch directories; run vhibench restore first")
	}
	repos = filterRepos(repos, flagSnapRepo)
	if len(repos) == 0 {
		return fmt.Errorf("no repositories to snapshot in %s", cfg.Corpus.Dir)
	}

	tool := runner.ToolRunner(cfg)
	tool.NoMultithreading = variant.NoMultithreading
	traceName := trace.VariantFileName(variant.TraceSuffix)
	ctx := context.Background()

	for _, repo := range repos {
		repoDir := filepath.Join(cfg.Corpus.Dir, repo)
		if err := corpus.ActivateAll(repoDir); err != nil {
			return err
		}
		fmt.Printf("Snapshotting %s (%s)...\n", repo, variant.Name)
		rec, err := tool.Run(ctx, repoDir, traceName)
		if err != nil {
			return fmt.Errorf("%s: %w", repo, err)
		}
		total, _ := rec.Stage(trace.StageTotal)
		fmt.Printf("  %d versions, %.2fs total, kept %s\n", rec.NoVersions, total, traceName)
	}
	return nil
}
