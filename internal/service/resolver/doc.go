// Package resolver finds the firmware version to mirror.
//
// The newest release is read from the first entry of the vendor feed; an
// explicit version skips the network entirely.
package resolver
