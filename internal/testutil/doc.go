// Package testutil contains builders shared by tests: scripted model
// responses and message transcripts. Not intended for production usage.
package testutil
