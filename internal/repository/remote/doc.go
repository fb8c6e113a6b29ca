// Package remote implements the firmware repository the mirror publishes to.
//
// Store is the narrow set of operations the publisher needs. FTPStore speaks
// FTP to a device or file server; FSStore writes into a directory through
// afero, which serves file:// targets and tests alike.
package remote
