package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/gitops"
)

var flagFetchSource string

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Materialize corpus repositories from configured sources",
		Long: `Fetch clones each configured ref of each source shallowly and strips its
git metadata, leaving one version directory per ref. Refs already present in
the corpus, active or inactive, are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			sources := cfg.Corpus.Sources
			if flagFetchSource != "" {
				sources = nil
				for _, s := range cfg.Corpus.Sources {
					if s.Name == flagFetchSource {
						sources = append(sources, s)
					}
				}
				if len(sources) == 0 {
					return fmt.Errorf("unknown source %q", flagFetchSource)
				}
			}
			if len(sources) == 0 {
				return fmt.Errorf("no corpus sources configured")
			}
			for _, s := range sources {
				fmt.Printf("Fetching %s (%d refs)...\n", s.Name, len(s.Refs))
				repoDir := filepath.Join(cfg.Corpus.Dir, s.Name)
				if err := gitops.FetchSource(repoDir, s.Repo, s.Refs); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFetchSource, "source", "", "fetch a single configured source")
	return cmd
}
