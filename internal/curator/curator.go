package curator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/quorum/internal/git"
	"github.com/joescharf/quorum/internal/models"
)

// DefaultTokenBudget is the default ceiling on estimated tokens handed to
// reviewers, matching the upstream curation default.
const DefaultTokenBudget = 20000

// tokenCharRatio is the characters-per-token estimate. Code is denser than
// prose, so 3.5 rather than the usual 4.
const tokenCharRatio = 3.5

// largeChangeThreshold is the changed-line count above which a file is
// treated as a large change.
const largeChangeThreshold = 100

// CurationError indicates the upstream ref resolution or diff listing failed
// before any curation could happen.
type CurationError struct {
	BaseRef   string
	TargetRef string
	Err       error
}

func (e *CurationError) Error() string {
	return fmt.Sprintf("curate %s...%s: %v", e.BaseRef, e.TargetRef, e.Err)
}

func (e *CurationError) Unwrap() error { return e.Err }

var tier1Keywords = []string{
	"auth", "password", "token", "secret", "crypto", "security", "permission",
	"credential", "database", "migration", "schema", "sql",
	"api", "endpoint", "route", "controller",
}

var docKeywords = []string{".md", ".txt", ".rst", "readme", "changelog", "license"}

// classify assigns a priority tier and human-readable reason to a file.
// Rules are evaluated in fixed order; the first match wins.
func classify(path string, insertions, deletions int) (int, string) {
	lower := strings.ToLower(path)
	total := insertions + deletions

	for _, kw := range tier1Keywords {
		if strings.Contains(lower, kw) {
			return 1, "security-sensitive"
		}
	}
	if total > largeChangeThreshold {
		return 2, fmt.Sprintf("large-change (%d lines)", total)
	}
	if strings.Contains(lower, "test") {
		return 4, "test"
	}
	for _, kw := range docKeywords {
		if strings.Contains(lower, kw) {
			return 5, "docs"
		}
	}
	return 3, "standard"
}

// EstimateTokens estimates the token cost of text.
func EstimateTokens(text string) int {
	return int(float64(len(text)) / tokenCharRatio)
}

// Curate enumerates changed files between baseRef and targetRef, ranks them
// by priority, and selects diffs until the token budget would be exceeded.
//
// Selection stops at the first file that does not fit: every file after it in
// priority order is skipped too, so the curated set is always the best
// deterministic prefix of the ranking rather than a knapsack fit. Lower
// priority files never displace higher priority ones.
func Curate(gc git.Client, repoPath, baseRef, targetRef string, tokenBudget int) (*models.Curation, error) {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	stats, err := gc.ChangedFiles(repoPath, baseRef, targetRef)
	if err != nil {
		return nil, &CurationError{BaseRef: baseRef, TargetRef: targetRef, Err: err}
	}

	type ranked struct {
		git.FileStat
		tier   int
		reason string
	}
	files := make([]ranked, 0, len(stats))
	for _, st := range stats {
		tier, reason := classify(st.Path, st.Insertions, st.Deletions)
		files = append(files, ranked{FileStat: st, tier: tier, reason: reason})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].tier != files[j].tier {
			return files[i].tier < files[j].tier
		}
		ci := files[i].Insertions + files[i].Deletions
		cj := files[j].Insertions + files[j].Deletions
		if ci != cj {
			return ci > cj
		}
		return files[i].Path < files[j].Path
	})

	cur := &models.Curation{
		BaseRef:     baseRef,
		TargetRef:   targetRef,
		TotalFiles:  len(files),
		TokenBudget: tokenBudget,
	}

	budgetExhausted := false
	for _, f := range files {
		if budgetExhausted {
			cur.Skipped = append(cur.Skipped, models.SkippedChange{
				Path:       f.Path,
				Tier:       f.tier,
				Reason:     "token budget exceeded",
				Insertions: f.Insertions,
				Deletions:  f.Deletions,
			})
			continue
		}

		diff, err := gc.FileDiff(repoPath, baseRef, targetRef, f.Path)
		if err != nil {
			return nil, &CurationError{BaseRef: baseRef, TargetRef: targetRef, Err: err}
		}
		est := EstimateTokens(diff)

		if cur.EstimatedTokens+est > tokenBudget {
			budgetExhausted = true
			cur.Skipped = append(cur.Skipped, models.SkippedChange{
				Path:       f.Path,
				Tier:       f.tier,
				Reason:     "token budget exceeded",
				Insertions: f.Insertions,
				Deletions:  f.Deletions,
			})
			continue
		}

		cur.Curated = append(cur.Curated, models.CuratedChange{
			Path:            f.Path,
			Tier:            f.tier,
			Reason:          f.reason,
			Insertions:      f.Insertions,
			Deletions:       f.Deletions,
			Diff:            diff,
			EstimatedTokens: est,
		})
		cur.EstimatedTokens += est
	}

	return cur, nil
}
