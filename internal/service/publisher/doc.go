// Package publisher replaces the artifacts and the version marker on the
// remote firmware repository.
//
// The marker is removed first and written last, so it never names a version
// whose artifacts are not all in place. With staged uploads the new files go
// up under temporary names and are renamed only after every upload succeeded.
package publisher
