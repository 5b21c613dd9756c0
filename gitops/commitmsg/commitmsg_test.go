package commitmsg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/repo_sync/gitops/commitmsg"
)

var vars = commitmsg.Vars{
	Hub:        "acme/hub",
	Repository: "spoke1",
	Branch:     "sync/123",
	Trigger:    "123",
}

func TestRender_substitutes_variables(t *testing.T) {
	t.Parallel()

	got := commitmsg.Render(
		"sync {{repository}} from {{hub}} on {{branch}}",
		vars,
	)

	assert.Equal(
		t, "sync spoke1 from acme/hub on sync/123", got,
	)
}

func TestRender_unknown_variable_preserved(t *testing.T) {
	t.Parallel()

	got := commitmsg.Render("x {{nope}} y", vars)

	assert.Equal(t, "x {{nope}} y", got)
}

func TestCompose_default_template(t *testing.T) {
	t.Parallel()

	msg := commitmsg.Compose(
		"", vars, []string{"README.md"},
	)

	assert.Equal(
		t,
		"chore(sync): update files from acme/hub",
		msg.Headline,
	)
	assert.Contains(t, msg.Body, "--- synced files begin ---")
	assert.Contains(t, msg.Body, "README.md")
}

func TestCompose_multiline_template(t *testing.T) {
	t.Parallel()

	msg := commitmsg.Compose(
		"sync: {{trigger}}\n\nfrom {{hub}}",
		vars,
		nil,
	)

	assert.Equal(t, "sync: 123", msg.Headline)
	assert.Equal(t, "from acme/hub", msg.Body)
	assert.Equal(
		t, "sync: 123\n\nfrom acme/hub", msg.String(),
	)
}

func TestGenerate_lists_paths_between_markers(t *testing.T) {
	t.Parallel()

	got := commitmsg.Generate([]string{"a.md", "dir/b.yml"})

	assert.Equal(
		t,
		"\n--- synced files begin ---\n"+
			"a.md\ndir/b.yml\n"+
			"--- synced files end ---\n",
		got,
	)
}
