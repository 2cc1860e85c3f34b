// Package prompt renders the four consensus-protocol prompts. Every renderer
// is a pure function: identical inputs produce byte-identical output, with no
// timestamps or randomness. Templates never truncate draft or curated text;
// fitting a provider's context window is the AI caller's problem.
package prompt

import (
	"fmt"
	"strings"

	"github.com/joescharf/quorum/internal/consensus"
)

// Critique pairs a peer id with its critique text for the refinement prompt.
type Critique struct {
	Participant string
	Text        string
}

// InitialDraft instructs the lead to produce a structured, severity-tagged
// review of the curated changes. The diff text is embedded directly; the
// lead needs no exploration tools. extraContext is an optional blob of
// reviewer-supplied context (ticket notes, deployment constraints) appended
// verbatim.
func InitialDraft(sessionID, leadID, curatedText, extraContext string) string {
	var b strings.Builder

	b.WriteString("# Code Review Task - Initial Draft\n\n")
	fmt.Fprintf(&b, "You are **%s**, the lead reviewer for session `%s`.\n\n", leadID, sessionID)
	b.WriteString("All the data you need is below - no exploration needed. Write a comprehensive code review of the curated changes.\n\n")
	b.WriteString("---\n\n## Code Changes (Curated)\n\n")
	b.WriteString(curatedText)
	b.WriteString("\n\n---\n\n")

	if extraContext != "" {
		b.WriteString("## Additional Context\n\n")
		b.WriteString(extraContext)
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString("## Focus Areas\n\n")
	b.WriteString("1. **Security**: auth/authz problems, missing input validation, injection, hardcoded secrets\n")
	b.WriteString("2. **Logic**: incorrect algorithms, unhandled edge cases, race conditions, nil risks\n")
	b.WriteString("3. **Performance**: inefficient queries, leaks, unnecessary work\n")
	b.WriteString("4. **Quality**: naming, duplication, missing error handling, missing tests\n\n")
	b.WriteString("## Review Format\n\n")
	b.WriteString("Structure your review as markdown with severity-tagged findings:\n\n")
	fmt.Fprintf(&b, "```markdown\n# Code Review by %s\n\n", leadID)
	b.WriteString("## Critical Issues\n\n### [CRITICAL] Issue Title\n**Location**: `file.go:42`\n**Problem**: what is wrong\n**Impact**: what could go wrong\n**Fix**: specific, actionable solution\n\n")
	b.WriteString("## Major Issues\n\n### [MAJOR] ...\n\n## Minor Issues\n\n### [MINOR] ...\n\n## Positive Observations\n\n- well-written parts worth keeping\n```\n\n")
	b.WriteString("Mention exact file paths and line numbers from the diffs. Prioritize Critical > Major > Minor. Provide actionable fixes, not just complaints.\n\n")
	b.WriteString("Write the review now, and return only the review markdown.\n")

	return b.String()
}

// PeerCritique instructs a peer to evaluate the lead's current draft and
// return a structured verdict plus specific additions or objections.
func PeerCritique(sessionID, participantID, draftText string, round int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Code Review Task - Round %d: Peer Critique\n\n", round)
	fmt.Fprintf(&b, "You are **%s**, critically reviewing the lead reviewer's draft for session `%s`.\n\n", participantID, sessionID)
	b.WriteString("---\n\n## Lead Reviewer's Draft\n\n")
	b.WriteString(draftText)
	b.WriteString("\n\n---\n\n")
	b.WriteString("## Your Task\n\n")
	b.WriteString("Evaluate the draft critically. Start your response with exactly one verdict line:\n\n")
	b.WriteString("- `VERDICT: AGREE` - the draft is accurate and complete\n")
	b.WriteString("- `VERDICT: PARTIAL` - valid findings, but corrections or additions are needed\n")
	b.WriteString("- `VERDICT: DISAGREE` - the draft has significant errors or omissions\n\n")
	b.WriteString("Then, for each point of contention:\n\n")
	b.WriteString("- Issues you **agree** with, and any added context\n")
	b.WriteString("- Issues where the finding is valid but the **fix needs improvement** (give a better one)\n")
	b.WriteString("- Issues you **disagree** with, with evidence from the diffs\n")
	b.WriteString("- **Issues the lead missed**, with location, problem, and fix\n\n")
	b.WriteString("Be honest and critical - the goal is a correct review, not politeness. Reference specific code.\n")

	return b.String()
}

// LeadRefinement instructs the lead to read all peer critiques and either
// produce a revised draft or state the no-further-changes sentinel verbatim.
func LeadRefinement(sessionID, leadID, draftText string, critiques []Critique) string {
	var b strings.Builder

	b.WriteString("# Code Review Task - Refinement Decision\n\n")
	fmt.Fprintf(&b, "You are **%s**, the lead reviewer for session `%s`. Your peers have critiqued your draft.\n\n", leadID, sessionID)
	b.WriteString("---\n\n## Your Current Draft\n\n")
	b.WriteString(draftText)
	b.WriteString("\n\n---\n\n## Peer Critiques\n\n")
	for _, c := range critiques {
		fmt.Fprintf(&b, "### Critique by %s\n\n%s\n\n", c.Participant, c.Text)
	}
	b.WriteString("---\n\n## Your Task\n\n")
	b.WriteString("Read every critique, then do exactly one of the following:\n\n")
	fmt.Fprintf(&b, "1. **Revise**: produce a complete revised review. For each critique, state explicitly which points you accepted or rejected and why, then give the full revised review markdown. Do not include the phrase %s anywhere in a revision.\n", consensus.NoFurtherChanges)
	fmt.Fprintf(&b, "2. **Stand firm**: if no critique warrants a change, reply with the single line:\n\n   %s\n\n   optionally followed by a short justification.\n\n", consensus.NoFurtherChanges)
	b.WriteString("Accept valid corrections - do not defend mistakes. Reject invalid critiques with evidence.\n")

	return b.String()
}

// AgreementCheck instructs a peer to answer strictly AGREE or DISAGREE on
// the lead's final draft. Used only after the lead has signaled no further
// changes.
func AgreementCheck(sessionID, participantID, finalDraftText string) string {
	var b strings.Builder

	b.WriteString("# Code Review Task - Final Agreement Check\n\n")
	fmt.Fprintf(&b, "You are **%s** in session `%s`. The lead reviewer considers the review below final.\n\n", participantID, sessionID)
	b.WriteString("---\n\n## Final Draft\n\n")
	b.WriteString(finalDraftText)
	b.WriteString("\n\n---\n\n## Your Task\n\n")
	b.WriteString("Answer with exactly one verdict line, then nothing else unless you disagree:\n\n")
	b.WriteString("- `VERDICT: AGREE` - you endorse this review as-is\n")
	b.WriteString("- `VERDICT: DISAGREE` - you do not endorse it; follow with your rationale\n\n")
	b.WriteString("Do not answer PARTIAL here. If the review is acceptable despite nits, answer AGREE. If you answer DISAGREE, your rationale will be fed back into the next revision cycle, so make it specific.\n")

	return b.String()
}
