package fanout

import (
	"context"
	"log/slog"

	"github.com/byte4ever/repo_sync/gitops/git"
)

// ProcessAllForTest exposes processAll.
func ProcessAllForTest(
	ctx context.Context,
	repos []git.Repository,
	parallelism int,
	fn func(context.Context, git.Repository) Outcome,
) []Outcome {
	return processAll(ctx, repos, parallelism, fn)
}

// LogToForTest exposes Summary.logTo.
func LogToForTest(s Summary, logger *slog.Logger) {
	s.logTo(logger)
}
