package fanout

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Status is the terminal state of one repository.
type Status int

const (
	// StatusNoChange means the spoke already matched.
	StatusNoChange Status = iota
	// StatusPRCreated means branch, commit and pull
	// request all succeeded.
	StatusPRCreated
	// StatusPushedWithoutPR means the commit landed
	// on the sync branch but no pull request was
	// opened.
	StatusPushedWithoutPR
	// StatusFailed means the repository failed before
	// its commit landed.
	StatusFailed
	// StatusDryRun means changes were found but not
	// applied.
	StatusDryRun
	// StatusSkipped means the run was cancelled before
	// the repository started.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusNoChange:
		return "no-change"
	case StatusPRCreated:
		return "pr-created"
	case StatusPushedWithoutPR:
		return "pushed-without-pr"
	case StatusFailed:
		return "failed"
	case StatusDryRun:
		return "dry-run"
	case StatusSkipped:
		return "skipped"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Outcome is the result of processing one repository.
type Outcome struct {
	Repository     string
	Status         Status
	Branch         string
	AlreadyExisted bool
	CommitURL      string
	PullRequestURL string
	Additions      int
	Deletions      int
	// Err is set for StatusFailed, and for
	// StatusPushedWithoutPR with the pull request
	// error.
	Err error
}

// Summary collects the outcomes of a run in
// repository order.
type Summary struct {
	Outcomes []Outcome
}

// Count returns how many outcomes have status st.
func (s Summary) Count(st Status) int {
	n := 0

	for _, o := range s.Outcomes {
		if o.Status == st {
			n++
		}
	}

	return n
}

// Failed reports whether any repository failed or
// was skipped by cancellation.
func (s Summary) Failed() bool {
	return s.Count(StatusFailed)+s.Count(StatusSkipped) > 0
}

// Log writes one line per repository.
func (s Summary) Log() {
	s.logTo(slog.Default())
}

func (s Summary) logTo(logger *slog.Logger) {
	for _, o := range s.Outcomes {
		attrs := []any{
			"repository", o.Repository,
			"status", o.Status.String(),
		}

		switch o.Status {
		case StatusPRCreated:
			attrs = append(attrs, "pull_request", o.PullRequestURL)
		case StatusPushedWithoutPR:
			attrs = append(
				attrs,
				"branch", o.Branch,
				"commit", o.CommitURL,
				"hint", "create the pull request manually",
			)
		case StatusFailed:
			attrs = append(attrs, "error", o.Err)
			logger.Warn("repository done", attrs...)

			continue
		default:
		}

		logger.Info("repository done", attrs...)
	}

	logger.Info(
		"sync finished",
		"repositories", len(s.Outcomes),
		"pr_created", s.Count(StatusPRCreated),
		"pushed_without_pr", s.Count(StatusPushedWithoutPR),
		"no_change", s.Count(StatusNoChange),
		"dry_run", s.Count(StatusDryRun),
		"failed", s.Count(StatusFailed),
		"skipped", s.Count(StatusSkipped),
	)
}

// Render writes the outcomes as a table.
func (s Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Repository", "Status", "Changes", "Link", "Detail",
	})
	table.SetAutoWrapText(false)

	for _, o := range s.Outcomes {
		link := o.PullRequestURL
		if link == "" {
			link = o.CommitURL
		}

		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		}

		table.Append([]string{
			o.Repository,
			o.Status.String(),
			fmt.Sprintf("+%d -%d", o.Additions, o.Deletions),
			link,
			detail,
		})
	}

	table.Render()
}
