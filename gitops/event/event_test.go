package event_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_sync/gitops/event"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

const pushPayload = `{
	"before": "1111",
	"after": "2222",
	"commits": [
		{"id": "a", "added": ["docs/new.md"], "modified": ["README.md"], "removed": []},
		{"id": "b", "added": [], "modified": ["README.md"], "removed": ["old.txt"]}
	]
}`

type fakeCheckout struct {
	changed    []string
	tracked    []string
	err        error
	gotBefore  string
	gotAfter   string
	trackedRev string
}

func (f *fakeCheckout) ChangedPaths(
	before string,
	after string,
) ([]string, error) {
	f.gotBefore, f.gotAfter = before, after

	return f.changed, f.err
}

func (f *fakeCheckout) TrackedPaths(rev string) ([]string, error) {
	f.trackedRev = rev

	return f.tracked, f.err
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want event.Kind
	}{
		{name: "push", want: event.Push},
		{name: "workflow_dispatch", want: event.Dispatch},
		{name: "manual-dispatch", want: event.Dispatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := event.ParseKind(tt.name)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind_unsupported(t *testing.T) {
	t.Parallel()

	_, err := event.ParseKind("pull_request")

	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	p, err := event.Decode(strings.NewReader(pushPayload))

	require.NoError(t, err)
	assert.Equal(t, "1111", p.Before)
	assert.Equal(t, "2222", p.After)
	assert.Equal(
		t,
		[]string{"README.md", "docs/new.md", "old.txt"},
		p.Paths(),
	)
}

func TestDecode_invalid(t *testing.T) {
	t.Parallel()

	_, err := event.Decode(strings.NewReader("{"))

	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(
		path,
		[]byte(`{"inputs": {"repository": " spoke1 ", "dry": true}}`),
		0o600,
	))

	p, err := event.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "spoke1", p.Input("repository"))
	assert.Equal(t, "true", p.Input("dry"))
	assert.Empty(t, p.Input("absent"))
}

func TestLoad_missing_file(t *testing.T) {
	t.Parallel()

	_, err := event.Load(filepath.Join(t.TempDir(), "nope.json"))

	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}

func TestChangedPaths_push_uses_checkout(t *testing.T) {
	t.Parallel()

	p, err := event.Decode(strings.NewReader(pushPayload))
	require.NoError(t, err)

	co := &fakeCheckout{changed: []string{"README.md"}}

	got, err := event.ChangedPaths(event.Push, p, co)

	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, got)
	assert.Equal(t, "1111", co.gotBefore)
	assert.Equal(t, "2222", co.gotAfter)
}

func TestChangedPaths_push_falls_back_to_payload(t *testing.T) {
	t.Parallel()

	p, err := event.Decode(strings.NewReader(pushPayload))
	require.NoError(t, err)

	co := &fakeCheckout{err: errors.New("object not found")}

	got, err := event.ChangedPaths(event.Push, p, co)

	require.NoError(t, err)
	assert.Equal(
		t,
		[]string{"README.md", "docs/new.md", "old.txt"},
		got,
	)
}

func TestChangedPaths_dispatch(t *testing.T) {
	t.Parallel()

	co := &fakeCheckout{tracked: []string{"LICENSE", "README.md"}}

	got, err := event.ChangedPaths(
		event.Dispatch, event.Payload{}, co,
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"LICENSE", "README.md"}, got)
	assert.Empty(t, co.trackedRev)
}

func TestChangedPaths_dispatch_without_checkout(t *testing.T) {
	t.Parallel()

	_, err := event.ChangedPaths(
		event.Dispatch, event.Payload{}, nil,
	)

	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}
