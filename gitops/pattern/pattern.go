package pattern

import (
	"slices"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// Selection is the per-run outcome of matching the
// changed paths. Both slices are sorted and free of
// duplicates.
type Selection struct {
	Replicate []string
	Remove    []string
}

// Empty reports whether there is nothing to do.
func (s Selection) Empty() bool {
	return len(s.Replicate) == 0 && len(s.Remove) == 0
}

// Set is a compiled list of globs. The zero value
// matches nothing.
type Set struct {
	raw   []string
	globs []glob.Glob
}

// Compile compiles every pattern with '/' as path
// separator. A "**" segment also matches zero
// directories, so "a/**/b" matches "a/b" and "**/b"
// matches "b".
func Compile(patterns []string) (Set, error) {
	const errCtx = "compiling patterns"

	set := Set{raw: patterns}

	for _, p := range patterns {
		for _, v := range expand(p) {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return Set{}, syncerr.Errorf(
					syncerr.KindConfiguration,
					errCtx,
					"invalid pattern %q: %w", p, err,
				)
			}

			set.globs = append(set.globs, g)
		}
	}

	return set, nil
}

// expand returns p followed by every variant with
// some of its non-final "**" segments dropped.
func expand(p string) []string {
	segs := strings.Split(p, "/")
	variants := [][]string{nil}

	for i, seg := range segs {
		next := make([][]string, 0, 2*len(variants))

		for _, v := range variants {
			next = append(next, append(slices.Clone(v), seg))

			if seg == "**" && i < len(segs)-1 {
				next = append(next, slices.Clone(v))
			}
		}

		variants = next
	}

	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, len(variants))

	for _, v := range variants {
		joined := strings.Join(v, "/")
		if _, ok := seen[joined]; ok {
			continue
		}

		seen[joined] = struct{}{}
		out = append(out, joined)
	}

	return out
}

// Len returns the number of source patterns.
func (s Set) Len() int {
	return len(s.raw)
}

// Match reports whether any glob matches path.
func (s Set) Match(path string) bool {
	for _, g := range s.globs {
		if g.Match(path) {
			return true
		}
	}

	return false
}

// Select splits changedPaths into files to replicate
// and files to remove. Remove and include globs are
// mutually exclusive.
func Select(
	changedPaths []string,
	include []string,
	exclude []string,
	remove []string,
) (Selection, error) {
	const errCtx = "selecting files"

	if len(remove) > 0 && len(include) > 0 {
		return Selection{}, syncerr.Errorf(
			syncerr.KindConfiguration,
			errCtx,
			"remove patterns cannot be combined "+
				"with include patterns",
		)
	}

	inc, err := Compile(include)
	if err != nil {
		return Selection{}, err
	}

	exc, err := Compile(exclude)
	if err != nil {
		return Selection{}, err
	}

	rem, err := Compile(remove)
	if err != nil {
		return Selection{}, err
	}

	return selectCompiled(changedPaths, inc, exc, rem), nil
}

func selectCompiled(
	changedPaths []string,
	inc Set,
	exc Set,
	rem Set,
) Selection {
	replicate := make(map[string]struct{})
	removal := make(map[string]struct{})

	for _, raw := range changedPaths {
		p := normalize(raw)
		if p == "" {
			continue
		}

		if rem.Match(p) {
			removal[p] = struct{}{}

			continue
		}

		if inc.Len() > 0 && !inc.Match(p) {
			continue
		}

		if exc.Match(p) {
			continue
		}

		replicate[p] = struct{}{}
	}

	return Selection{
		Replicate: sortedKeys(replicate),
		Remove:    sortedKeys(removal),
	}
}

// normalize strips "./" and leading slashes so that
// patterns always see repository-relative paths.
func normalize(p string) string {
	p = strings.TrimPrefix(p, "./")

	return strings.TrimLeft(p, "/")
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}

	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
