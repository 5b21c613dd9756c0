// Package diff compares hub files against a spoke repository's default branch
// and builds the ChangeSet that brings the spoke up to date. Only files whose
// bytes differ, or that are missing remotely, become additions; only files
// that exist remotely become deletions.
package diff
