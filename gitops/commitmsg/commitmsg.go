package commitmsg

import (
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	begin = "--- synced files begin ---"
	end   = "--- synced files end ---"
)

// Defaults used when no template is configured.
const (
	DefaultCommitTemplate = "chore(sync): update files from {{hub}}"
	DefaultBodyTemplate   = "Files synchronised from {{hub}} " +
		"(trigger {{trigger}})."
)

// Vars are the values available to templates as
// {{hub}}, {{repository}}, {{branch}} and
// {{trigger}}.
type Vars struct {
	Hub        string
	Repository string
	Branch     string
	Trigger    string
}

func (v Vars) context() map[string]any {
	return map[string]any{
		"hub":        v.Hub,
		"repository": v.Repository,
		"branch":     v.Branch,
		"trigger":    v.Trigger,
	}
}

// Render substitutes {{var}} placeholders in tpl.
// Unknown placeholders are kept as-is.
func Render(tpl string, vars Vars) string {
	return fasttemplate.ExecuteStringStd(
		tpl, "{{", "}}", vars.context(),
	)
}

// Message is a rendered commit message split the way
// hosts expect it.
type Message struct {
	Headline string
	Body     string
}

// String joins headline and body with a blank line.
func (m Message) String() string {
	if m.Body == "" {
		return m.Headline
	}

	return m.Headline + "\n\n" + m.Body
}

// Compose renders tpl, takes its first line as the
// headline and appends the file list to the body.
func Compose(
	tpl string,
	vars Vars,
	paths []string,
) Message {
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultCommitTemplate
	}

	rendered := strings.TrimSpace(Render(tpl, vars))
	headline, rest, _ := strings.Cut(rendered, "\n")

	body := strings.TrimSpace(rest)
	if len(paths) > 0 {
		body = strings.TrimLeft(
			body+"\n"+Generate(paths), "\n",
		)
	}

	return Message{
		Headline: strings.TrimSpace(headline),
		Body:     body,
	}
}

// Generate produces a section listing paths between
// begin/end markers.
func Generate(paths []string) string {
	var sb strings.Builder

	sb.WriteByte('\n')
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}
