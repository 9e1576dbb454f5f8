package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/corpus"
	"github.com/vhibench/vhibench/internal/trace"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List corpus repositories and their version counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			repos, err := corpus.Repos(cfg.Corpus.Dir)
			if err != nil {
				return err
			}
			fmt.Printf("Corpus: %s\n", cfg.Corpus.Dir)
			for _, repo := range repos {
				if base, run, ok := corpus.ParseWorkName(repo); ok {
					fmt.Printf("  - %s  [scratch leftover of %s run %d; run vhibench restore]\n", repo, base, run)
					continue
				}
				entries, err := corpus.ReadEntries(filepath.Join(cfg.Corpus.Dir, repo))
				if err != nil {
					return err
				}
				total, active := corpus.CountVersions(entries)
				line := fmt.Sprintf("  - %s (%d versions, %d active)", repo, total, active)
				if _, err := os.Stat(filepath.Join(cfg.Corpus.Dir, repo, trace.TempFileName)); err == nil {
					line += "  [leftover temp telemetry]"
				}
				fmt.Println(line)
			}
			if len(repos) == 0 {
				fmt.Println("  (empty)")
			}
			return nil
		},
	}
}
