// Package sftpstore implements datastore.FileStore over SFTP, grounded on
// the original SFTPDataStore (paramiko-based) and wired onto the teacher's
// go.mod stack of github.com/pkg/sftp and golang.org/x/crypto/ssh, the same
// pairing kopia's own SFTP blob backend uses.
package sftpstore

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
)

var log = blog.GetContextLoggerFunc("datastore.sftpstore")

const defaultPort = 22

// Store is a datastore.FileStore backed by an SFTP server. Remote backends
// never parallelize well over a single connection.
type Store struct {
	client     *sftp.Client
	conn       *ssh.Client
	workingDir string
}

var _ datastore.FileStore = (*Store)(nil)

// ConnectionString parses spec §6's SFTP connection string:
// ftp://<user>:<password-or-private-key-path>@<host>[:<port>][/<working_dir>].
// If the credential resolves to an existing file, it is read as a private
// key; otherwise it is used as a password.
type ConnectionString struct {
	Host       string
	Port       int
	Username   string
	Credential string
	WorkingDir string
}

// ParseConnectionString parses raw per the ftp:// scheme above.
func ParseConnectionString(raw string) (ConnectionString, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ConnectionString{}, errors.Wrap(err, "parsing sftp connection string")
	}

	if u.Scheme != "ftp" {
		return ConnectionString{}, errors.Errorf("sftp connection string must use the ftp:// scheme, got %q", raw)
	}

	if u.User == nil {
		return ConnectionString{}, errors.New("sftp connection string is missing a username")
	}

	cred, _ := u.User.Password()

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return ConnectionString{}, errors.Wrap(err, "parsing sftp port")
		}
	}

	return ConnectionString{
		Host:       u.Hostname(),
		Port:       port,
		Username:   u.User.Username(),
		Credential: cred,
		WorkingDir: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// authMethod resolves the credential into a password or private-key auth
// method, per spec §6: an existing file path is a private key, otherwise a
// password.
func authMethod(credential string) (ssh.AuthMethod, error) {
	if info, err := os.Stat(credential); err == nil && !info.IsDir() {
		key, err := os.ReadFile(credential)
		if err != nil {
			return nil, errors.Wrap(err, "reading private key")
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "parsing private key")
		}

		return ssh.PublicKeys(signer), nil
	}

	return ssh.Password(credential), nil
}

// Dial connects to the server named by raw and returns a ready-to-use Store
// rooted at its working directory.
func Dial(raw string) (*Store, error) {
	cs, err := ParseConnectionString(raw)
	if err != nil {
		return nil, err
	}

	auth, err := authMethod(cs.Credential)
	if err != nil {
		return nil, err
	}

	conn, err := ssh.Dial("tcp", net.JoinHostPort(cs.Host, strconv.Itoa(cs.Port)), &ssh.ClientConfig{
		User:            cs.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // no host-key store is configured for this engine
	})
	if err != nil {
		return nil, backuperrors.WrapIoError(err, fmt.Sprintf("connecting to sftp://%s@%s:%d", cs.Username, cs.Host, cs.Port))
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, backuperrors.WrapIoError(err, "opening sftp session")
	}

	workingDir := cs.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}

	return &Store{client: client, conn: conn, workingDir: workingDir}, nil
}

// Close releases the underlying SFTP session and SSH connection.
func (s *Store) Close() error {
	cerr := s.client.Close()
	if err := s.conn.Close(); err != nil && cerr == nil {
		cerr = err
	}

	return cerr
}

func (s *Store) ExecuteInParallel() bool { return false }
func (s *Store) IsLocalFilesystem() bool { return false }
func (s *Store) WorkingDir() string      { return s.workingDir }
func (s *Store) SetWorkingDir(dir string) { s.workingDir = dir }

// ValidateBackupInputs is a no-op: a remote store cannot overlap local
// backup inputs.
func (s *Store) ValidateBackupInputs(_ context.Context, _ []string) error { return nil }

func (s *Store) SnapshotFilenameToDestinationName(p string) string {
	return strings.TrimPrefix(p, "/")
}

// BytesAvailable reports nil: SFTP has no portable free-space query.
func (s *Store) BytesAvailable(_ context.Context) (*uint64, error) { return nil, nil } //nolint:nilnil

func (s *Store) ItemType(_ context.Context, p string) (*datastore.ItemType, error) {
	fi, err := s.client.Lstat(p)
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil
	}

	if err != nil {
		return nil, backuperrors.WrapIoError(err, "stat "+p)
	}

	var t datastore.ItemType

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		t = datastore.ItemTypeSymLink
	case fi.IsDir():
		t = datastore.ItemTypeDir
	default:
		t = datastore.ItemTypeFile
	}

	return &t, nil
}

func (s *Store) FileSize(_ context.Context, p string) (int64, error) {
	fi, err := s.client.Stat(p)
	if err != nil {
		return 0, backuperrors.WrapIoError(err, "stat "+p)
	}

	return fi.Size(), nil
}

// RemoveDir recursively empties then removes path: the SFTP protocol can
// only rmdir an empty directory, per the original SFTPDataStore.
func (s *Store) RemoveDir(ctx context.Context, p string) error {
	var dirs []string

	err := s.Walk(ctx, p, func(entry datastore.WalkEntry) error {
		for _, name := range entry.Files {
			if err := s.client.Remove(entry.Root + "/" + name); err != nil && !os.IsNotExist(err) {
				return backuperrors.WrapIoError(err, "remove file "+entry.Root+"/"+name)
			}
		}

		dirs = append(dirs, entry.Root)

		return nil
	})
	if err != nil {
		return err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.client.RemoveDirectory(dirs[i]); err != nil && !os.IsNotExist(err) {
			return backuperrors.WrapIoError(err, "rmdir "+dirs[i])
		}
	}

	return nil
}

func (s *Store) RemoveFile(_ context.Context, p string) error {
	if err := s.client.Remove(p); err != nil && !os.IsNotExist(err) {
		return backuperrors.WrapIoError(err, "remove file "+p)
	}

	return nil
}

func (s *Store) RemoveItem(ctx context.Context, p string) error {
	t, err := s.ItemType(ctx, p)
	if err != nil {
		return err
	}

	if t == nil {
		return nil
	}

	if *t == datastore.ItemTypeDir {
		return s.RemoveDir(ctx, p)
	}

	return s.RemoveFile(ctx, p)
}

// MakeDirs creates path and every missing parent via sftp.Client.MkdirAll.
func (s *Store) MakeDirs(_ context.Context, p string) error {
	if err := s.client.MkdirAll(p); err != nil {
		return backuperrors.WrapIoError(err, "mkdir "+p)
	}

	return nil
}

func (s *Store) Open(_ context.Context, p string, mode datastore.OpenMode) (datastore.Stream, error) {
	switch mode {
	case datastore.OpenRead:
		f, err := s.client.Open(p)
		if err != nil {
			return nil, backuperrors.WrapIoError(err, "open "+p)
		}

		return f, nil

	case datastore.OpenWrite:
		if err := s.client.MkdirAll(path.Dir(p)); err != nil {
			return nil, backuperrors.WrapIoError(err, "mkdir "+path.Dir(p))
		}

		f, err := s.client.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
		if err != nil {
			return nil, backuperrors.WrapIoError(err, "open "+p+" for write")
		}

		return f, nil

	default:
		return nil, errors.Errorf("unknown open mode %v", mode)
	}
}

// Rename removes any existing newpath first: the SFTP protocol's rename
// does not replace an existing destination, per the original SFTPDataStore.
func (s *Store) Rename(ctx context.Context, oldpath, newpath string) error {
	if err := s.RemoveItem(ctx, newpath); err != nil {
		return err
	}

	if err := s.client.MkdirAll(path.Dir(newpath)); err != nil {
		return backuperrors.WrapIoError(err, "mkdir "+path.Dir(newpath))
	}

	if err := s.client.Rename(oldpath, newpath); err != nil {
		return backuperrors.WrapIoError(err, "rename "+oldpath+" to "+newpath)
	}

	return nil
}

// Walk performs a breadth-first traversal, grounded on the original
// SFTPDataStore.Walk (the SFTP protocol has no recursive listing
// primitive).
func (s *Store) Walk(_ context.Context, root string, fn datastore.WalkFunc) error {
	toSearch := []string{root}

	for len(toSearch) > 0 {
		dir := toSearch[0]
		toSearch = toSearch[1:]

		fi, err := s.client.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return backuperrors.WrapIoError(err, "stat "+dir)
		}

		if !fi.IsDir() {
			continue
		}

		entries, err := s.client.ReadDir(dir)
		if err != nil {
			return backuperrors.WrapIoError(err, "readdir "+dir)
		}

		var dirs, files []string

		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else {
				files = append(files, e.Name())
			}
		}

		if err := fn(datastore.WalkEntry{Root: dir, Dirs: dirs, Files: files}); err != nil {
			return err
		}

		for _, d := range dirs {
			toSearch = append(toSearch, dir+"/"+d)
		}
	}

	return nil
}
