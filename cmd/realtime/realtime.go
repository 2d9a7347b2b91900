// Package realtime implements the realtime analysis subcommand.
package realtime

import (
	"github.com/spf13/cobra"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/analysis"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// Command creates the realtime subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the station in realtime monitoring mode",
		RunE: func(_ *cobra.Command, _ []string) error {
			return analysis.RunRealtime(settings)
		},
	}

	cmd.Flags().StringVar(&settings.Realtime.Audio.Source, "source", settings.Realtime.Audio.Source,
		"Audio capture source, empty to run without local capture")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "api", settings.WebServer.Enabled,
		"Serve the REST API")

	return cmd
}
