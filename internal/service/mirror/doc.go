// Package mirror runs one mirroring pass: resolve the latest release, skip
// when the remote already has it, download the artifacts, publish them and
// clean up the staging directory.
package mirror
