// Package version exposes build metadata for firmware-mirror.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Full is printed by the `version` subcommand and UserAgent is
// sent with every request to the vendor.
package version
