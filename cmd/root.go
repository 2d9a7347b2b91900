// Package cmd assembles the command line interface of the station.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mverteuil/BirdNET-Pi-sub000/cmd/backup"
	"github.com/mverteuil/BirdNET-Pi-sub000/cmd/file"
	"github.com/mverteuil/BirdNET-Pi-sub000/cmd/realtime"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdnet-pi",
		Short: "BirdNET-Pi acoustic monitoring station",
		Long: "Continuously classifies bird vocalizations from a local microphone " +
			"or remote nodes, stores enriched detections and serves them over a REST API.",
	}

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logging.Init()
		return conf.ValidateSettings(settings)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		backup.Command(settings),
	)
	return rootCmd
}
