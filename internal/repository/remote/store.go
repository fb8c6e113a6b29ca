package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/afero"
)

// Store is a flat namespace of named objects.
type Store interface {
	// List returns the names of the entries in the store root.
	List(ctx context.Context) ([]string, error)
	// Retrieve returns the full contents of name.
	Retrieve(ctx context.Context, name string) ([]byte, error)
	// Store writes r to name, replacing an existing object.
	Store(ctx context.Context, name string, r io.Reader) error
	// Delete removes name.
	Delete(ctx context.Context, name string) error
	// Rename moves from to to.
	Rename(ctx context.Context, from, to string) error
	// Close releases the connection.
	Close() error
}

var (
	// ErrNotFound is returned when the named object does not exist.
	ErrNotFound = errors.New("remote object not found")
	// ErrPermission is returned when the server refuses the operation.
	ErrPermission = errors.New("remote operation not permitted")
	// errUnsupportedScheme is returned by Open for unknown URL schemes.
	errUnsupportedScheme = errors.New("unsupported remote scheme")
)

// Target describes where and how to connect.
type Target struct {
	// URL is ftp://host[:port]/path or file:///path.
	URL string
	// Username and Password are used for FTP login.
	Username string
	Password string
	// Timeout bounds dialing and each control command.
	Timeout time.Duration
}

// Open connects to the store described by target.
//
//nolint:ireturn // Callers only need the Store behaviour.
func Open(ctx context.Context, target Target) (Store, error) {
	parsed, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}

	switch parsed.Scheme {
	case "ftp":
		return DialFTP(ctx, parsed, target.Username, target.Password, target.Timeout)
	case "file":
		return NewFSStore(afero.NewOsFs(), parsed.Path)
	default:
		return nil, fmt.Errorf("%s: %w", parsed.Scheme, errUnsupportedScheme)
	}
}
