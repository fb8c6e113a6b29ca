// Package config defines the mirror settings and helpers to load, validate
// and save them in YAML format.
//
// Defaults target the RouterOS download site, so running without a config
// file works. Remote credentials may also come from a .env file or the
// environment.
package config
