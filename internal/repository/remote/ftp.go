package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// Reply codes of interest, see RFC 959.
const (
	defaultFTPPort = "21"

	codeFileUnavailable = ftp.StatusFileUnavailable // 550
	minPermanentCode    = 500
	maxPermanentCode    = 599
)

// FTPStore is a Store backed by a logged-in FTP control connection.
type FTPStore struct {
	conn *ftp.ServerConn
}

// DialFTP connects, logs in and changes into the URL path.
// An empty username logs in anonymously.
func DialFTP(ctx context.Context, target *url.URL, username, password string, timeout time.Duration) (*FTPStore, error) {
	address := target.Host
	if target.Port() == "" {
		address = net.JoinHostPort(target.Hostname(), defaultFTPPort)
	}

	options := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if timeout > 0 {
		options = append(options, ftp.DialWithTimeout(timeout))
	}

	conn, err := ftp.Dial(address, options...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	if username == "" {
		username, password = "anonymous", "anonymous"
	}

	if err = conn.Login(username, password); err != nil {
		_ = conn.Quit()

		return nil, fmt.Errorf("login as %s: %w", username, classifyFTP(err))
	}

	if target.Path != "" && target.Path != "/" {
		if err = conn.ChangeDir(target.Path); err != nil {
			_ = conn.Quit()

			return nil, fmt.Errorf("change dir to %s: %w", target.Path, classifyFTP(err))
		}
	}

	return &FTPStore{conn: conn}, nil
}

// List returns NLST of the current directory.
// Some servers prefix entries with the directory, only basenames are kept.
func (s *FTPStore) List(_ context.Context) ([]string, error) {
	entries, err := s.conn.NameList("")
	if err != nil {
		return nil, fmt.Errorf("list: %w", classifyFTP(err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, path.Base(entry))
	}

	return names, nil
}

// Retrieve downloads name in binary mode.
func (s *FTPStore) Retrieve(_ context.Context, name string) ([]byte, error) {
	response, err := s.conn.Retr(name)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", name, classifyFTP(err))
	}

	var buf bytes.Buffer

	_, err = io.Copy(&buf, response)

	if closeErr := response.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", name, classifyFTP(err))
	}

	return buf.Bytes(), nil
}

// Store uploads r to name in binary mode.
func (s *FTPStore) Store(_ context.Context, name string, r io.Reader) error {
	if err := s.conn.Stor(name, r); err != nil {
		return fmt.Errorf("store %s: %w", name, classifyFTP(err))
	}

	return nil
}

// Delete removes name.
func (s *FTPStore) Delete(_ context.Context, name string) error {
	if err := s.conn.Delete(name); err != nil {
		return fmt.Errorf("delete %s: %w", name, classifyFTP(err))
	}

	return nil
}

// Rename issues RNFR/RNTO.
func (s *FTPStore) Rename(_ context.Context, from, to string) error {
	if err := s.conn.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, classifyFTP(err))
	}

	return nil
}

// Close sends QUIT.
func (s *FTPStore) Close() error {
	return s.conn.Quit()
}

// classifyFTP maps permanent negative replies to the store sentinels.
// 550 means the file is unavailable, which servers use for missing files;
// any other 5xx is treated as a refusal.
func classifyFTP(err error) error {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return err
	}

	switch {
	case protoErr.Code == codeFileUnavailable:
		return errors.Join(ErrNotFound, err)
	case protoErr.Code >= minPermanentCode && protoErr.Code <= maxPermanentCode:
		return errors.Join(ErrPermission, err)
	default:
		return err
	}
}
