// Package checker decides whether the remote firmware repository needs a new publish.
package checker
