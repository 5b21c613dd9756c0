package event

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// Kind is the trigger of a run.
type Kind int

const (
	// Push is a push to the hub.
	Push Kind = iota + 1
	// Dispatch is a manual run.
	Dispatch
)

func (k Kind) String() string {
	switch k {
	case Push:
		return "push"
	case Dispatch:
		return "workflow_dispatch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps an event name to a Kind.
// "manual-dispatch" is accepted as an alias of
// "workflow_dispatch". Anything else is a
// configuration error.
func ParseKind(name string) (Kind, error) {
	switch strings.TrimSpace(name) {
	case "push":
		return Push, nil
	case "workflow_dispatch", "manual-dispatch":
		return Dispatch, nil
	default:
		return 0, syncerr.Errorf(
			syncerr.KindConfiguration,
			"parsing trigger kind",
			"unsupported trigger %q", name,
		)
	}
}

// Commit is one commit of a push payload.
type Commit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Payload is the subset of the runner's event file a
// run needs.
type Payload struct {
	Before  string         `json:"before"`
	After   string         `json:"after"`
	Commits []Commit       `json:"commits"`
	Inputs  map[string]any `json:"inputs"`
}

// Decode reads a payload from r.
func Decode(r io.Reader) (Payload, error) {
	const errCtx = "decoding event payload"

	var p Payload

	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, syncerr.New(
			syncerr.KindConfiguration, errCtx, err,
		)
	}

	return p, nil
}

// Load reads the payload file at path.
func Load(path string) (Payload, error) {
	const errCtx = "loading event payload"

	f, err := os.Open(path)
	if err != nil {
		return Payload{}, syncerr.New(
			syncerr.KindConfiguration, errCtx, err,
		)
	}

	defer f.Close() //nolint:errcheck

	p, err := Decode(f)
	if err != nil {
		return Payload{}, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return p, nil
}

// Input returns a dispatch input as a string, or ""
// when absent.
func (p Payload) Input(name string) string {
	v, ok := p.Inputs[name]
	if !ok || v == nil {
		return ""
	}

	return strings.TrimSpace(fmt.Sprint(v))
}

// Paths returns every path added, modified or removed
// by the pushed commits, sorted and unique.
func (p Payload) Paths() []string {
	seen := make(map[string]struct{})

	for _, c := range p.Commits {
		for _, list := range [][]string{c.Added, c.Modified, c.Removed} {
			for _, path := range list {
				seen[path] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}

	sort.Strings(out)

	return out
}

// Checkout reads paths from the local hub clone.
// *git.Repo implements it.
type Checkout interface {
	ChangedPaths(before string, after string) ([]string, error)
	TrackedPaths(rev string) ([]string, error)
}

// ChangedPaths returns the hub paths a trigger
// touched. A push diffs before..after in the checkout
// and falls back to the payload commit lists when the
// history is unavailable (for instance in a shallow
// clone). A dispatch treats every tracked file as
// changed. co may be nil.
func ChangedPaths(
	kind Kind,
	p Payload,
	co Checkout,
) ([]string, error) {
	const errCtx = "resolving changed paths"

	switch kind {
	case Push:
		if co == nil || p.After == "" {
			return p.Paths(), nil
		}

		paths, err := co.ChangedPaths(p.Before, p.After)
		if err != nil {
			slog.Warn(
				"cannot diff the hub checkout, "+
					"using the event commits",
				"before", p.Before,
				"after", p.After,
				"error", err,
			)

			return p.Paths(), nil
		}

		return paths, nil
	case Dispatch:
		if co == nil {
			return nil, syncerr.Errorf(
				syncerr.KindConfiguration,
				errCtx,
				"a dispatch run needs the hub checkout",
			)
		}

		paths, err := co.TrackedPaths("")
		if err != nil {
			return nil, syncerr.New(
				syncerr.KindLocalRead, errCtx, err,
			)
		}

		return paths, nil
	default:
		return nil, syncerr.Errorf(
			syncerr.KindConfiguration,
			errCtx,
			"unsupported trigger %s", kind,
		)
	}
}
