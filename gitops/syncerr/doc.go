// Package syncerr defines the closed set of error kinds a sync run can
// produce. Every failure surfaced by the engine is wrapped in an *Error
// carrying one Kind, so retry-versus-fatal decisions are a switch over Kind
// rather than string matching.
package syncerr
