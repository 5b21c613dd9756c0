// Package pattern decides which changed hub files are replicated to spoke
// repositories and which are removed from them. Globs follow shell globstar
// rules evaluated against slash-separated repository-relative paths.
package pattern
