package curator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/quorum/internal/git"
)

// fakeGit serves canned numstat and per-file diffs.
type fakeGit struct {
	stats   []git.FileStat
	diffs   map[string]string
	listErr error
	diffErr error
}

func (f *fakeGit) RepoRoot(string) (string, error)      { return "/repo", nil }
func (f *fakeGit) CurrentBranch(string) (string, error) { return "main", nil }

func (f *fakeGit) ChangedFiles(path, base, target string) ([]git.FileStat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stats, nil
}

func (f *fakeGit) FileDiff(path, base, target, file string) (string, error) {
	if f.diffErr != nil {
		return "", f.diffErr
	}
	return f.diffs[file], nil
}

// diffOfTokens builds a diff string estimated at exactly n tokens.
func diffOfTokens(n int) string {
	return strings.Repeat("x", int(float64(n)*tokenCharRatio))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path       string
		insertions int
		deletions  int
		wantTier   int
	}{
		{"internal/auth/login.go", 5, 1, 1},
		{"db/migrations/0001_init.sql", 2, 0, 1},
		{"api/routes.go", 1, 1, 1},
		{"pkg/engine/big.go", 90, 30, 2},
		{"pkg/engine/engine.go", 10, 5, 3},
		{"pkg/engine/engine_test.go", 30, 10, 4},
		{"README.md", 500, 0, 5},
		{"CHANGELOG", 3, 0, 5},
	}
	for _, tt := range tests {
		tier, reason := classify(tt.path, tt.insertions, tt.deletions)
		assert.Equal(t, tt.wantTier, tier, "path %s (%s)", tt.path, reason)
		assert.NotEmpty(t, reason)
	}
}

func TestClassify_SecurityBeatsSize(t *testing.T) {
	// Keyword rules come first, so a huge auth file is still tier 1.
	tier, _ := classify("services/auth/handler.go", 900, 400)
	assert.Equal(t, 1, tier)
	// The size rule runs before the test rule, so a huge test file is tier 2.
	tier, _ = classify("pkg/engine/engine_test.go", 90, 30)
	assert.Equal(t, 2, tier)
}

func TestCurate_StopsAtFirstBudgetSkip(t *testing.T) {
	// Token sizes [50, 30, 9000, 20], budget 100. The 9000-token file busts
	// the budget, and the 20-token file after it is skipped even though it
	// would have fit.
	fg := &fakeGit{
		stats: []git.FileStat{
			{Path: "auth/a.go", Insertions: 40, Deletions: 0},
			{Path: "auth/b.go", Insertions: 30, Deletions: 0},
			{Path: "pkg/core.go", Insertions: 20, Deletions: 0},
			{Path: "auth/c.go", Insertions: 10, Deletions: 0},
		},
		diffs: map[string]string{
			"auth/a.go":   diffOfTokens(50),
			"auth/b.go":   diffOfTokens(30),
			"pkg/core.go": diffOfTokens(9000),
			"auth/c.go":   diffOfTokens(20),
		},
	}

	cur, err := Curate(fg, "/repo", "develop", "HEAD", 100)
	require.NoError(t, err)

	require.Len(t, cur.Curated, 2)
	assert.Equal(t, "auth/a.go", cur.Curated[0].Path)
	assert.Equal(t, "auth/b.go", cur.Curated[1].Path)

	require.Len(t, cur.Skipped, 2)
	assert.Equal(t, "pkg/core.go", cur.Skipped[0].Path)
	assert.Equal(t, "auth/c.go", cur.Skipped[1].Path)
	for _, s := range cur.Skipped {
		assert.Equal(t, "token budget exceeded", s.Reason)
	}

	assert.Equal(t, 80, cur.EstimatedTokens)
	assert.LessOrEqual(t, cur.EstimatedTokens, cur.TokenBudget)
}

func TestCurate_BudgetNeverExceeded(t *testing.T) {
	fg := &fakeGit{
		stats: []git.FileStat{
			{Path: "a.go", Insertions: 10},
			{Path: "b.go", Insertions: 10},
			{Path: "c.go", Insertions: 10},
		},
		diffs: map[string]string{
			"a.go": diffOfTokens(40),
			"b.go": diffOfTokens(40),
			"c.go": diffOfTokens(40),
		},
	}

	cur, err := Curate(fg, "/repo", "main", "HEAD", 100)
	require.NoError(t, err)

	sum := 0
	for _, c := range cur.Curated {
		sum += c.EstimatedTokens
	}
	assert.Equal(t, sum, cur.EstimatedTokens)
	assert.LessOrEqual(t, sum, 100)
	assert.Len(t, cur.Curated, 2)
	assert.Len(t, cur.Skipped, 1)
}

func TestCurate_DeterministicOrdering(t *testing.T) {
	// Same tier: larger change first, then lexicographic path.
	fg := &fakeGit{
		stats: []git.FileStat{
			{Path: "pkg/zz.go", Insertions: 5},
			{Path: "pkg/aa.go", Insertions: 5},
			{Path: "pkg/mid.go", Insertions: 50},
			{Path: "internal/auth/x.go", Insertions: 1},
		},
		diffs: map[string]string{
			"pkg/zz.go":          diffOfTokens(1),
			"pkg/aa.go":          diffOfTokens(1),
			"pkg/mid.go":         diffOfTokens(1),
			"internal/auth/x.go": diffOfTokens(1),
		},
	}

	cur, err := Curate(fg, "/repo", "main", "HEAD", 1000)
	require.NoError(t, err)
	require.Len(t, cur.Curated, 4)

	assert.Equal(t, "internal/auth/x.go", cur.Curated[0].Path) // tier 1 first
	assert.Equal(t, "pkg/mid.go", cur.Curated[1].Path)         // biggest tier-3 change
	assert.Equal(t, "pkg/aa.go", cur.Curated[2].Path)          // then path order
	assert.Equal(t, "pkg/zz.go", cur.Curated[3].Path)
}

func TestCurate_ListFailureIsCurationError(t *testing.T) {
	fg := &fakeGit{listErr: errors.New("bad revision 'nope'")}

	_, err := Curate(fg, "/repo", "nope", "HEAD", 100)
	require.Error(t, err)

	var cerr *CurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "nope", cerr.BaseRef)
	assert.Equal(t, "HEAD", cerr.TargetRef)
	assert.Contains(t, cerr.Error(), "bad revision")
}

func TestCurate_ZeroBudgetUsesDefault(t *testing.T) {
	fg := &fakeGit{
		stats: []git.FileStat{{Path: "a.go", Insertions: 1}},
		diffs: map[string]string{"a.go": diffOfTokens(10)},
	}
	cur, err := Curate(fg, "/repo", "main", "HEAD", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenBudget, cur.TokenBudget)
	assert.Len(t, cur.Curated, 1)
}

func TestFormat(t *testing.T) {
	fg := &fakeGit{
		stats: []git.FileStat{
			{Path: "auth/a.go", Insertions: 4, Deletions: 2},
			{Path: "docs/README.md", Insertions: 1},
		},
		diffs: map[string]string{
			"auth/a.go":      "+added line\n-removed line\n",
			"docs/README.md": diffOfTokens(100000),
		},
	}
	cur, err := Curate(fg, "/repo", "main", "feature", 50)
	require.NoError(t, err)

	out := Format(cur)
	assert.Contains(t, out, "# Code Changes Summary")
	assert.Contains(t, out, "`main` → **Target**: `feature`")
	assert.Contains(t, out, "`auth/a.go` (security-sensitive)")
	assert.Contains(t, out, "+added line")
	assert.Contains(t, out, "## Files Skipped (1 files)")
	assert.Contains(t, out, "token budget exceeded")

	// Determinism: identical input, byte-identical output.
	assert.Equal(t, out, Format(cur))
}
