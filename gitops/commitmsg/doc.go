// Package commitmsg renders commit messages and pull request text for sync
// commits. Templates use {{var}} placeholders; the list of touched files is
// appended between marker lines so a reader can tell which files a sync
// commit carries.
package commitmsg
