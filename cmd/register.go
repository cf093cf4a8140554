package cmd

import (
	"fmt"
	"log"

	"github.com/bryansray/fusion/fusion"
	"github.com/spf13/cobra"
)

var registerCommandsCmd = &cobra.Command{
	Use:   "register-commands",
	Short: "Register slash commands with Discord, then exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		f, err := fusion.New(cfg)
		if err != nil {
			log.Fatalf("error creating fusion: %s", err.Error())
		}
		created, err := f.RegisterCommandsOnly(cmd.Context())
		if err != nil {
			log.Fatalf("error registering commands: %s", err.Error())
		}
		for _, c := range created {
			fmt.Fprintf(cmd.OutOrStdout(), "registered /%s\n", c.Name)
		}
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(registerCommandsCmd)
}
