package targets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// SFTPTarget uploads backups over SFTP, authenticating with either a
// password or a private key.
type SFTPTarget struct {
	host           string
	port           int
	username       string
	password       string
	privateKeyPath string
	knownHostsPath string
	path           string
}

// NewSFTPTarget creates an SFTP target from the settings.
func NewSFTPTarget(settings *conf.Settings) *SFTPTarget {
	port := settings.Backup.SFTP.Port
	if port == 0 {
		port = 22
	}
	return &SFTPTarget{
		host:           settings.Backup.SFTP.Host,
		port:           port,
		username:       settings.Backup.SFTP.Username,
		password:       settings.Backup.SFTP.Password,
		privateKeyPath: settings.Backup.SFTP.PrivateKeyPath,
		knownHostsPath: settings.Backup.SFTP.KnownHostsPath,
		path:           settings.Backup.SFTP.Path,
	}
}

func (t *SFTPTarget) Name() string {
	return "sftp"
}

// Store uploads the artifact over a fresh SSH session.
func (t *SFTPTarget) Store(ctx context.Context, localPath, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	config, err := t.sshConfig()
	if err != nil {
		return err
	}

	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", t.host, t.port), config)
	if err != nil {
		return networkError(err, "sftp_dial", t.host)
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return networkError(err, "sftp_session", t.host)
	}
	defer client.Close()

	remotePath := path.Base(fileName)
	if t.path != "" {
		_ = client.MkdirAll(t.path)
		remotePath = path.Join(t.path, remotePath)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fileIOError(err, localPath)
	}
	defer src.Close()

	dest, err := client.Create(remotePath)
	if err != nil {
		return networkError(err, "sftp_create", t.host)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return networkError(err, "sftp_write", t.host)
	}
	return dest.Close()
}

// sshConfig builds the client configuration. Without a known_hosts file
// any host key is accepted, which matches the trust model of a LAN
// deployment.
func (t *SFTPTarget) sshConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if t.privateKeyPath != "" {
		key, err := os.ReadFile(t.privateKeyPath)
		if err != nil {
			return nil, fileIOError(err, t.privateKeyPath)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.New(err).
				Component("backup").
				Category(errors.CategoryValidation).
				Context("path", t.privateKeyPath).
				Build()
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.password != "" {
		auth = append(auth, ssh.Password(t.password))
	}
	if len(auth) == 0 {
		return nil, errors.Newf("sftp target requires a password or private key").
			Component("backup").
			Category(errors.CategoryValidation).
			Build()
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // trusted LAN default, known_hosts opt-in
	if t.knownHostsPath != "" {
		callback, err := knownhosts.New(t.knownHostsPath)
		if err != nil {
			return nil, fileIOError(err, t.knownHostsPath)
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            t.username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}, nil
}
