// Package gitlog imports version-control commits for known projects
// and attributes them to the agent sessions whose active time windows
// overlap them.
//
// The git binary is wrapped behind the CommitLister capability
// interface so the importer can be exercised in tests without shelling
// out. Any failure of the real binary degrades to "no commits available
// this cycle"; the resume point is left unchanged and the next cycle
// retries the same range.
package gitlog

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Commit is one commit as reported by the version-control tool.
type Commit struct {
	Hash          string
	ShortHash     string
	Author        string
	AuthorEmail   string
	Timestamp     time.Time
	Subject       string
	Body          string
	FilesChanged  int
	Insertions    int
	Deletions     int
	AgentAuthored bool
}

// CommitLister enumerates new commits for a working copy.
type CommitLister interface {
	// ListCommits returns commits newer than sinceHash, newest first.
	// When sinceHash is empty, commits are bounded by sinceTime
	// instead. A directory that is not a working copy yields no
	// commits and no error.
	ListCommits(ctx context.Context, dir, sinceHash string, sinceTime time.Time) ([]Commit, error)

	// RemoteURL returns the fetch URL of the default remote, or ""
	// when none is configured.
	RemoteURL(ctx context.Context, dir string) string
}

// Record and field separators for git pretty-format output. Control
// characters cannot appear in commit messages, so splitting is exact.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// CLI is the CommitLister backed by the git binary.
type CLI struct {
	// Timeout bounds each git invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the per-invocation bound for git commands.
const DefaultTimeout = 30 * time.Second

func (c *CLI) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// isRepository reports whether dir is inside a git working copy.
func (c *CLI) isRepository(ctx context.Context, dir string) bool {
	_, err := c.run(ctx, dir, "rev-parse", "--git-dir")
	return err == nil
}

// ListCommits implements CommitLister using two git log passes: one for
// commit records, one for shortstat counters, joined by hash. Shortstat
// lines for merge commits or empty diffs are absent and default to zero.
func (c *CLI) ListCommits(ctx context.Context, dir, sinceHash string, sinceTime time.Time) ([]Commit, error) {
	if !c.isRepository(ctx, dir) {
		return nil, nil
	}

	logArgs := []string{"log", "--pretty=format:%H" + fieldSep + "%h" + fieldSep +
		"%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%s" + fieldSep + "%b" + recordSep}
	if sinceHash != "" {
		logArgs = append(logArgs, sinceHash+"..HEAD")
	} else {
		logArgs = append(logArgs, "--since="+sinceTime.UTC().Format(time.RFC3339))
	}

	output, err := c.run(ctx, dir, logArgs...)
	if err != nil {
		return nil, err
	}

	commits := parseLog(string(output))
	if len(commits) == 0 {
		return nil, nil
	}

	statArgs := []string{"log", "--shortstat", "--pretty=format:" + recordSep + "%H"}
	if sinceHash != "" {
		statArgs = append(statArgs, sinceHash+"..HEAD")
	} else {
		statArgs = append(statArgs, "--since="+sinceTime.UTC().Format(time.RFC3339))
	}

	statOutput, err := c.run(ctx, dir, statArgs...)
	if err != nil {
		return nil, err
	}

	stats := parseShortstat(string(statOutput))
	for i := range commits {
		if st, ok := stats[commits[i].Hash]; ok {
			commits[i].FilesChanged = st.files
			commits[i].Insertions = st.insertions
			commits[i].Deletions = st.deletions
		}
	}

	return commits, nil
}

// RemoteURL implements CommitLister.
func (c *CLI) RemoteURL(ctx context.Context, dir string) string {
	output, err := c.run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// parseLog splits pretty-format output into commits, newest first.
// Records that do not parse are dropped rather than failing the batch.
func parseLog(output string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 7)
		if len(fields) < 7 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			continue
		}

		body := strings.TrimRight(fields[6], "\n")
		commit := Commit{
			Hash:        fields[0],
			ShortHash:   fields[1],
			Author:      fields[2],
			AuthorEmail: fields[3],
			Timestamp:   ts,
			Subject:     fields[5],
			Body:        body,
		}
		commit.AgentAuthored = isAgentAuthored(commit.Subject + "\n" + commit.Body)
		commits = append(commits, commit)
	}
	return commits
}

// isAgentAuthored checks for a co-authorship trailer naming the agent
// or its no-reply sender address, case-insensitively.
func isAgentAuthored(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "co-authored-by: claude") ||
		strings.Contains(m, "noreply@anthropic.com")
}

type shortstat struct {
	files      int
	insertions int
	deletions  int
}

// parseShortstat joins --shortstat output back to hashes. Each record
// starts with the hash line, optionally followed by a counter line like
// " 3 files changed, 12 insertions(+), 4 deletions(-)".
func parseShortstat(output string) map[string]shortstat {
	stats := make(map[string]shortstat)
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		lines := strings.SplitN(record, "\n", 2)
		hash := strings.TrimSpace(lines[0])
		if hash == "" {
			continue
		}

		var st shortstat
		if len(lines) == 2 {
			st = parseShortstatLine(lines[1])
		}
		stats[hash] = st
	}
	return stats
}

func parseShortstatLine(line string) shortstat {
	var st shortstat
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		fields := strings.Fields(part)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(fields[1], "file"):
			st.files = n
		case strings.HasPrefix(fields[1], "insertion"):
			st.insertions = n
		case strings.HasPrefix(fields[1], "deletion"):
			st.deletions = n
		}
	}
	return st
}
