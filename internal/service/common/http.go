//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/oshokin/firmware-mirror/internal/version"
)

// HTTPOptions configures NewHTTPClient.
type HTTPOptions struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate validation for this client only.
	InsecureSkipVerify bool
}

// NewHTTPClient returns a client with its own transport, so TLS settings
// never leak into http.DefaultTransport.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // Stdlib guarantees the type.

	//nolint:gosec // Opt-in through --insecure for vendors with awkward chains.
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &userAgentTransport{next: transport},
	}
}

// userAgentTransport sets the User-Agent header on every request.
type userAgentTransport struct {
	next http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", version.UserAgent())

	return t.next.RoundTrip(clone)
}
