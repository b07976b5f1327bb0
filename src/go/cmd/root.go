package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "kbfusion",
		Short: "kb-fusion - hybrid lexical/semantic passage retrieval",
		Long: `kb-fusion searches one indexed file at a time, fusing BM25 full-text
scoring with dense embedding similarity via reciprocal rank fusion, pseudo
relevance feedback, and MMR diversification. The full-text index, chunk
store, and embedding provider are external collaborators; this CLI only
drives the retrieval engine against them.`,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (optional; without it only defaults and environment variables apply)")
}
