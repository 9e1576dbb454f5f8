package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/corpus"
	"github.com/vhibench/vhibench/internal/runner"
)

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Recover the corpus after an interrupted sweep",
		Long: `Restore renames scratch directories back to their canonical names, removes
leftover transient telemetry files, and reactivates every version directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			restored, err := runner.Restore(cfg.Corpus.Dir)
			if err != nil {
				return err
			}
			for _, repo := range restored {
				fmt.Printf("Restored %s\n", repo)
			}
			repos, err := corpus.Repos(cfg.Corpus.Dir)
			if err != nil {
				return err
			}
			for _, repo := range repos {
				if err := corpus.ActivateAll(filepath.Join(cfg.Corpus.Dir, repo)); err != nil {
					return err
				}
			}
			fmt.Printf("%d repositories active\n", len(repos))
			return nil
		},
	}
}
