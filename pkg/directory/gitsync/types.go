package gitsync

import (
	"time"
)

// CommitInfo contains metadata about a Git commit.
type CommitInfo struct {
	SHA        string    `json:"sha"`
	Author     string    `json:"author"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Branch     string    `json:"branch"`
	Repository string    `json:"repository"`
}

// Short returns the abbreviated SHA used in log lines.
func (c *CommitInfo) Short() string {
	return shortSHA(c.SHA)
}

// RepositoryMetrics tracks Git operation metrics.
type RepositoryMetrics struct {
	CloneDuration     time.Duration
	FetchDuration     time.Duration
	LastFetchTime     time.Time
	FailedFetches     int64
	SuccessfulFetches int64
}

// SyncMetrics tracks what the syncer did with fetched commits.
type SyncMetrics struct {
	Polls           int64
	Reloads         int64
	RejectedCommits int64
	SkippedCommits  int64 // commits that did not touch the document
	LastReloadTime  time.Time
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
