package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/report"
)

var (
	flagFormat string
	flagStages string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Re-aggregate a stored run into the time-series table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			var stages []string
			if flagStages != "" {
				for _, s := range strings.Split(flagStages, ",") {
					stages = append(stages, strings.TrimSpace(s))
				}
			}
			return report.Generate(resolved, flagFormat, stages, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, csv, json)")
	cmd.Flags().StringVar(&flagStages, "stages", "", "stages to report (comma separated, default load_versions,infer)")
	return cmd
}
