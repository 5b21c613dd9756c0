// Package git defines the hosting-platform contract used by the sync engine
// and the value types that cross it.
//
// The Host interface abstracts every remote call: account and repository
// discovery, file content reads, branch creation, atomic multi-file commits
// and pull request creation. Implementations exist for GitHub and GitLab in
// sub-packages. Remote conditions the engine reacts to are reported through
// the sentinel errors ErrNotFound, ErrAlreadyExists, ErrEmptyResult and
// ErrSubmittedTooQuickly.
//
// Repo wraps the local hub checkout (via go-git) and reports which paths a
// push touched, or every tracked path for a manual run.
package git
