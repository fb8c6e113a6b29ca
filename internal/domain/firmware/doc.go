// Package firmware contains the core domain types of the mirror.
//
// It defines Version (a dotted numeric release identifier), Architecture
// (a target platform), Template (a download URL pattern) and ArtifactKind
// (which file of a release a template points at).
package firmware
