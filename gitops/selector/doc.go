// Package selector builds the list of spoke repositories for a run: either
// one explicitly named repository or every repository of the owning account,
// filtered by IgnoreCriteria.
package selector
