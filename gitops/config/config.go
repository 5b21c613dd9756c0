package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/repo_sync/gitops/event"
	"github.com/byte4ever/repo_sync/gitops/pattern"
	"github.com/byte4ever/repo_sync/gitops/selector"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// Supported hosts.
const (
	HostGitHub = "github"
	HostGitLab = "gitlab"
)

// DefaultParallelism processes repositories one at a
// time when nothing else is configured.
const DefaultParallelism = 1

// Config is everything a run is configured with
// except credentials.
type Config struct {
	// Trigger is the event name ("push",
	// "workflow_dispatch" or "manual-dispatch").
	Trigger string `yaml:"trigger"`
	// Host selects the hosting platform.
	Host string `yaml:"host"`
	// HostURL is the GitHub Enterprise hostname or
	// the GitLab base URL.
	HostURL string `yaml:"host_url"`

	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	Remove  []string `yaml:"remove"`

	// Destination prefixes spoke-side paths.
	Destination string `yaml:"destination"`

	CommitMessage string `yaml:"commit_message"`
	PRBody        string `yaml:"pr_body"`
	BranchPrefix  string `yaml:"branch_prefix"`

	// Repository restricts the run to one spoke.
	Repository string `yaml:"repository"`

	Ignore selector.IgnoreCriteria `yaml:"ignore"`

	Parallelism int  `yaml:"parallelism"`
	DryRun      bool `yaml:"dry_run"`
	FailOnError bool `yaml:"fail_on_error"`
}

// Default returns the configuration used when no file
// or flag says otherwise.
func Default() Config {
	return Config{
		Trigger:     "push",
		Host:        HostGitHub,
		Parallelism: DefaultParallelism,
	}
}

// Validate reports every configuration error at once.
// The result is a KindConfiguration error.
func (c Config) Validate() error {
	var errs []error

	if _, err := event.ParseKind(c.Trigger); err != nil {
		errs = append(errs, err)
	}

	switch c.Host {
	case HostGitHub, HostGitLab:
	default:
		errs = append(errs, fmt.Errorf(
			"unsupported host %q", c.Host,
		))
	}

	if len(c.Remove) > 0 && len(c.Include) > 0 {
		errs = append(errs, errors.New(
			"remove and include patterns are mutually exclusive",
		))
	}

	for name, list := range map[string][]string{
		"include": c.Include,
		"exclude": c.Exclude,
		"remove":  c.Remove,
	} {
		if _, err := pattern.Compile(list); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Parallelism < 0 {
		errs = append(errs, fmt.Errorf(
			"parallelism must not be negative, got %d",
			c.Parallelism,
		))
	}

	if len(errs) == 0 {
		return nil
	}

	return syncerr.New(
		syncerr.KindConfiguration,
		"validating configuration",
		errors.Join(errs...),
	)
}

// SplitPatterns splits a newline or comma separated
// pattern list. Blank entries and lines starting with
// "#" are dropped.
func SplitPatterns(s string) []string {
	var out []string

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ','
	})

	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.HasPrefix(f, "#") {
			continue
		}

		out = append(out, f)
	}

	return out
}

// Decode reads a YAML configuration over the
// defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	const errCtx = "decoding configuration"

	cfg := Default()

	err := yaml.NewDecoder(r, yaml.Strict()).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, syncerr.New(
			syncerr.KindConfiguration, errCtx, err,
		)
	}

	return cfg, nil
}

// LoadFile reads the YAML configuration at path.
func LoadFile(path string) (Config, error) {
	const errCtx = "loading configuration"

	f, err := os.Open(path)
	if err != nil {
		return Config{}, syncerr.New(
			syncerr.KindConfiguration, errCtx, err,
		)
	}

	defer f.Close() //nolint:errcheck

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return cfg, nil
}
