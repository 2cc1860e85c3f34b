package git

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FileStat holds per-file change counts from `git diff --numstat`.
type FileStat struct {
	Path       string
	Insertions int
	Deletions  int
}

// Client defines the version-control operations the curator needs. Diffs are
// always file-scoped: a whole-repository diff routinely blows any reasonable
// token budget, so the interface deliberately has no way to ask for one.
type Client interface {
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	ChangedFiles(path, baseRef, targetRef string) ([]FileStat, error)
	FileDiff(path, baseRef, targetRef, file string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

// ChangedFiles lists files changed between baseRef and targetRef with their
// insertion/deletion counts, using three-dot notation so only the target
// side's changes are compared against the merge base.
func (c *RealClient) ChangedFiles(path, baseRef, targetRef string) ([]FileStat, error) {
	out, err := gitCmd(path, "diff", "--numstat", baseRef+"..."+targetRef)
	if err != nil {
		return nil, err
	}
	return ParseNumstat(out), nil
}

// FileDiff returns the diff for a single file between baseRef and targetRef.
func (c *RealClient) FileDiff(path, baseRef, targetRef, file string) (string, error) {
	out, err := gitCmd(path, "diff", baseRef+"..."+targetRef, "--", file)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ParseNumstat parses `git diff --numstat` output. Binary files report "-"
// counts, which parse as zero.
func ParseNumstat(output string) []FileStat {
	var stats []FileStat
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		stats = append(stats, FileStat{
			Path:       parts[2],
			Insertions: parseCount(parts[0]),
			Deletions:  parseCount(parts[1]),
		})
	}
	return stats
}

func parseCount(s string) int {
	if s == "-" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
