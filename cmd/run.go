package cmd

import (
	"log"

	"github.com/bryansray/fusion/fusion"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the Fusion bot and API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		f, err := fusion.New(cfg)
		if err != nil {
			log.Fatalf("error creating fusion: %s", err.Error())
		}

		if err = f.Run(ctx); err != nil {
			log.Fatalf("error running fusion: %s", err.Error())
		}
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(runCmd)
}
