package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/quorum/internal/consensus"
)

func TestInitialDraft(t *testing.T) {
	curated := "# Code Changes Summary\n\n```diff\n+func Login()\n```"
	out := InitialDraft("sess-1", "claude", curated, "")

	assert.Contains(t, out, "**claude**, the lead reviewer")
	assert.Contains(t, out, "`sess-1`")
	assert.Contains(t, out, "+func Login()")
	assert.Contains(t, out, "[CRITICAL]")
	assert.NotContains(t, out, "## Additional Context")
}

func TestInitialDraft_WithExtraContext(t *testing.T) {
	out := InitialDraft("sess-1", "claude", "diffs", "ticket: PAY-421 touches billing")
	assert.Contains(t, out, "## Additional Context")
	assert.Contains(t, out, "ticket: PAY-421 touches billing")
}

func TestPeerCritique(t *testing.T) {
	out := PeerCritique("sess-1", "codex", "# Draft\nno issues found", 2)

	assert.Contains(t, out, "Round 2: Peer Critique")
	assert.Contains(t, out, "**codex**")
	assert.Contains(t, out, "no issues found")
	assert.Contains(t, out, "VERDICT: AGREE")
	assert.Contains(t, out, "VERDICT: PARTIAL")
	assert.Contains(t, out, "VERDICT: DISAGREE")
}

func TestLeadRefinement(t *testing.T) {
	crits := []Critique{
		{Participant: "codex", Text: "missed SQL injection in db.go"},
		{Participant: "gemini", Text: "fix for race is wrong"},
	}
	out := LeadRefinement("sess-1", "claude", "# Draft v1", crits)

	assert.Contains(t, out, "### Critique by codex")
	assert.Contains(t, out, "missed SQL injection in db.go")
	assert.Contains(t, out, "### Critique by gemini")
	assert.Contains(t, out, consensus.NoFurtherChanges)
	assert.Contains(t, out, "# Draft v1")
}

func TestAgreementCheck(t *testing.T) {
	out := AgreementCheck("sess-1", "gemini", "# Final review")

	assert.Contains(t, out, "Final Agreement Check")
	assert.Contains(t, out, "# Final review")
	assert.Contains(t, out, "VERDICT: AGREE")
	assert.Contains(t, out, "VERDICT: DISAGREE")
	assert.Contains(t, out, "Do not answer PARTIAL here")
}

func TestRenderersAreDeterministic(t *testing.T) {
	crits := []Critique{{Participant: "codex", Text: "c"}}

	for name, render := range map[string]func() string{
		"initial":   func() string { return InitialDraft("s", "l", "d", "x") },
		"critique":  func() string { return PeerCritique("s", "p", "d", 3) },
		"refine":    func() string { return LeadRefinement("s", "l", "d", crits) },
		"agreement": func() string { return AgreementCheck("s", "p", "d") },
	} {
		a, b := render(), render()
		assert.Equal(t, a, b, "renderer %s must be byte-identical on same input", name)
	}
}

func TestTemplatesNeverTruncate(t *testing.T) {
	big := strings.Repeat("x", 1<<20)
	out := InitialDraft("s", "l", big, "")
	assert.Contains(t, out, big)

	out = AgreementCheck("s", "p", big)
	assert.Contains(t, out, big)
}
