// Package config holds the validated settings of a sync run and loads the
// optional YAML file that provides their defaults.
package config
