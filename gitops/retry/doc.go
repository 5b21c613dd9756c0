// Package retry runs an operation under a bounded, fixed-delay retry policy.
// A Policy is a plain value so each caller can hold its own policy and test
// it in isolation; timers are created per call and never shared.
package retry
