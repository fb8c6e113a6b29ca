// Package fetcher downloads the firmware artifacts of a release into a
// staging directory.
//
// Every artifact kind has an ordered list of URL templates. Templates are
// tried in order for each architecture and the first successful transfer
// wins; when none succeeds the whole fetch fails. Bundle archives are
// extracted in place and then removed.
package fetcher
