package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vhibench",
		Short: "Benchmark harness for a version-history-inference tool",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "vhibench.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newFetchCmd())
	return root
}
