// Package event parses the trigger of a sync run: its kind, the event
// payload written by the CI runner and the hub paths the trigger touched.
package event
