// Package fanout drives a sync run. It selects the hub files to replicate or
// remove, discovers the spoke repositories, and for each one computes a
// change set and applies it remotely: ensure the sync branch, commit all
// changes atomically, open a pull request. Each repository runs behind an
// isolation boundary so its failure never stops the others; repositories
// may be processed by a bounded worker pool.
//
// The main entry point is Run, which accepts a Config struct with all
// parameters for the workflow and returns a Summary of per-repository
// outcomes.
package fanout
