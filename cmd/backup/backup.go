// Package backup implements the one-shot backup subcommand.
package backup

import (
	"github.com/spf13/cobra"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/backup"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/backup/sources"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/backup/targets"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// Command creates the backup subcommand. It snapshots the detection
// database and uploads it to every enabled target, then exits.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the detection database to the configured targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, settings)
		},
	}
}

func run(cmd *cobra.Command, settings *conf.Settings) error {
	store := datastore.New(settings)
	if store == nil {
		return errors.Newf("no detection store configured").
			Component("backup").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var list []backup.Target
	if settings.Backup.Local.Enabled {
		list = append(list, targets.NewLocalTarget(settings))
	}
	if settings.Backup.FTP.Enabled {
		list = append(list, targets.NewFTPTarget(settings))
	}
	if settings.Backup.SFTP.Enabled {
		list = append(list, targets.NewSFTPTarget(settings))
	}
	if settings.Backup.GDrive.Enabled {
		list = append(list, targets.NewGDriveTarget(settings))
	}
	if len(list) == 0 {
		// Ad hoc runs default to a local copy.
		list = append(list, targets.NewLocalTarget(settings))
	}

	manager, err := backup.NewManager(sources.NewSQLiteSource(store), list...)
	if err != nil {
		return err
	}

	result, err := manager.Run(cmd.Context())
	if err != nil {
		return err
	}
	logging.Info("Backup complete",
		"file", result.FileName,
		"targets", result.Targets,
		"duration", result.Duration.String())
	return nil
}
