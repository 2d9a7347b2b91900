// Package file implements the offline file analysis subcommand.
package file

import (
	"github.com/spf13/cobra"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/analysis"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// Command creates the file subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Analyze an audio file or directory and store the detections",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return analysis.FileAnalysis(settings, args[0])
		},
	}
}
