package fanout_test

import (
	"context"
	"sync"
	"time"

	"github.com/byte4ever/repo_sync/gitops/fanout"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/retry"
)

// sleepRecorder replaces real waits and records the
// requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(
	_ context.Context,
	d time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delays = append(s.delays, d)

	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.delays...)
}

// policies returns the production policies with
// their waits redirected to rec.
func policies(rec *sleepRecorder) (retry.Policy, retry.Policy) {
	commit := fanout.CommitPolicy()
	commit.Sleep = rec.sleep

	pr := fanout.PullRequestPolicy()
	pr.Sleep = rec.sleep

	return commit, pr
}

func spoke(name string) git.Repository {
	return git.Repository{
		Owner:         "acme",
		Name:          name,
		URL:           "https://git.example.test/acme/" + name,
		ID:            "id-" + name,
		DefaultBranch: "main",
	}
}
