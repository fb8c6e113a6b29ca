// Package common holds helpers shared by several services.
//
// It provides the HTTP client used for vendor requests, with TLS settings
// scoped to the client, and a run marker that keeps two mirror runs from
// sharing a staging directory.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
