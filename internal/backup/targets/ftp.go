package targets

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// FTPTarget uploads backups to an FTP server.
type FTPTarget struct {
	host     string
	port     int
	username string
	password string
	path     string
}

// NewFTPTarget creates an FTP target from the settings.
func NewFTPTarget(settings *conf.Settings) *FTPTarget {
	port := settings.Backup.FTP.Port
	if port == 0 {
		port = 21
	}
	return &FTPTarget{
		host:     settings.Backup.FTP.Host,
		port:     port,
		username: settings.Backup.FTP.Username,
		password: settings.Backup.FTP.Password,
		path:     settings.Backup.FTP.Path,
	}
}

func (t *FTPTarget) Name() string {
	return "ftp"
}

// Store uploads the artifact, connecting per run so a dead server
// between runs never holds a stale session.
func (t *FTPTarget) Store(ctx context.Context, localPath, fileName string) error {
	conn, err := ftp.Dial(
		fmt.Sprintf("%s:%d", t.host, t.port),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(30*time.Second),
	)
	if err != nil {
		return networkError(err, "ftp_dial", t.host)
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(t.username, t.password); err != nil {
		return networkError(err, "ftp_login", t.host)
	}

	if t.path != "" {
		// MakeDir fails when the directory exists, which is fine.
		_ = conn.MakeDir(t.path)
		if err := conn.ChangeDir(t.path); err != nil {
			return networkError(err, "ftp_chdir", t.host)
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fileIOError(err, localPath)
	}
	defer file.Close()

	if err := conn.Stor(path.Base(fileName), file); err != nil {
		return networkError(err, "ftp_store", t.host)
	}
	return nil
}

func networkError(err error, operation, host string) error {
	return errors.New(err).
		Component("backup").
		Category(errors.CategoryNetwork).
		Context("operation", operation).
		Context("host", host).
		Build()
}
