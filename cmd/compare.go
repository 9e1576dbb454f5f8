package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vhibench/vhibench/internal/config"
	"github.com/vhibench/vhibench/internal/report"
	"github.com/vhibench/vhibench/internal/trace"
)

var flagCompareFormat string

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare variant snapshots side by side",
		Long: `Compare reads each configured variant's fixed telemetry file
(perf_trace<suffix>.json, captured by the snapshot command) from every
repository in the corpus and emits one row per repository with per-variant
stage durations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			variants := make([]report.VariantRecords, 0, len(cfg.Variants))
			for _, v := range cfg.Variants {
				records, err := trace.CollectVariant(cfg.Corpus.Dir, v.TraceSuffix)
				if err != nil {
					return err
				}
				variants = append(variants, report.VariantRecords{Name: v.Name, Records: records})
			}
			return report.Comparison(variants).Write(os.Stdout, flagCompareFormat)
		},
	}
	cmd.Flags().StringVar(&flagCompareFormat, "format", "table", "output format (table, csv, json)")
	return cmd
}
