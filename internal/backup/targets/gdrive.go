package targets

import (
	"context"
	"os"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// GDriveTarget uploads backups to a Google Drive folder using a service
// account.
type GDriveTarget struct {
	credentialsPath string
	folderID        string
}

// NewGDriveTarget creates a Google Drive target from the settings.
func NewGDriveTarget(settings *conf.Settings) *GDriveTarget {
	return &GDriveTarget{
		credentialsPath: settings.Backup.GDrive.CredentialsPath,
		folderID:        settings.Backup.GDrive.FolderID,
	}
}

func (t *GDriveTarget) Name() string {
	return "gdrive"
}

// Store uploads the artifact into the configured folder.
func (t *GDriveTarget) Store(ctx context.Context, localPath, fileName string) error {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(t.credentialsPath))
	if err != nil {
		return errors.New(err).
			Component("backup").
			Category(errors.CategoryNetwork).
			Context("operation", "gdrive_service").
			Build()
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fileIOError(err, localPath)
	}
	defer src.Close()

	meta := &drive.File{Name: fileName}
	if t.folderID != "" {
		meta.Parents = []string{t.folderID}
	}

	_, err = service.Files.Create(meta).Media(src).Context(ctx).Do()
	if err != nil {
		return errors.New(err).
			Component("backup").
			Category(errors.CategoryNetwork).
			Context("operation", "gdrive_upload").
			Context("file", fileName).
			Build()
	}
	return nil
}
