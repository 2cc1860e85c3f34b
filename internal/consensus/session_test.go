package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/quorum/internal/models"
)

func newTestSession(peers []string, maxRounds int) *Session {
	return New("01TESTSESSION", "main", "feature", "claude", peers, maxRounds)
}

// runToDecision drives a session from fresh through draft and critiques.
func runToDecision(t *testing.T, s *Session, draft string) {
	t.Helper()
	require.NoError(t, s.SubmitLeadDraft(draft))
	for _, p := range s.Peers() {
		require.NoError(t, s.SubmitPeerCritique(p, models.VerdictAgree, "looks fine"))
	}
	require.Equal(t, models.StateAwaitingLeadDecision, s.State())
}

func TestLeadOnlySession_ImmediateConsensus(t *testing.T) {
	s := newTestSession(nil, 5)

	require.NoError(t, s.SubmitLeadDraft("X"))

	assert.True(t, s.IsTerminal())
	res := s.Result()
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, "X", res.FinalText)
	assert.Equal(t, 1, res.RoundsCompleted)
}

func TestPeerCritiqueBeforeLeadDraft(t *testing.T) {
	s := newTestSession([]string{"codex"}, 5)

	err := s.SubmitPeerCritique("codex", models.VerdictAgree, "fine")
	require.Error(t, err)
	var ite *InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
}

func TestAllAgreeTerminatesWithUnchangedDraft(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	runToDecision(t, s, "v1")

	require.NoError(t, s.SubmitLeadDecision("All points addressed. "+NoFurtherChanges))
	require.Equal(t, models.StateAwaitingAgreementCheck, s.State())

	require.NoError(t, s.SubmitAgreement("codex", models.VerdictAgree, ""))
	require.NoError(t, s.SubmitAgreement("gemini", models.VerdictAgree, ""))

	res := s.Result()
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, "v1", res.FinalText)
	assert.Equal(t, 1, res.RoundsCompleted)
}

func TestDisagreeLoopsWithIncrementedRound(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	runToDecision(t, s, "v1")
	require.NoError(t, s.SubmitLeadDecision(NoFurtherChanges))

	require.NoError(t, s.SubmitAgreement("codex", models.VerdictAgree, ""))
	require.NoError(t, s.SubmitAgreement("gemini", models.VerdictDisagree, "missed a race in worker.go"))

	assert.Equal(t, models.StateAwaitingPeerCritique, s.State())
	assert.Equal(t, 2, s.Round())

	// Dissent carries into the next refinement cycle.
	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "still fine"))
	require.NoError(t, s.SubmitPeerCritique("gemini", models.VerdictDisagree, "see my objection"))
	crits := s.CritiquesForDecision()
	require.Len(t, crits, 3)
	assert.Equal(t, "gemini", crits[0].Participant)
	assert.Equal(t, "missed a race in worker.go", crits[0].Text)
}

func TestDisagreeAtMaxRoundsExhausts(t *testing.T) {
	s := newTestSession([]string{"codex"}, 1)
	runToDecision(t, s, "v1")
	require.NoError(t, s.SubmitLeadDecision(NoFurtherChanges))

	require.NoError(t, s.SubmitAgreement("codex", models.VerdictDisagree, "no"))

	assert.Equal(t, models.StateMaxRoundsExceeded, s.State())
	res := s.Result()
	assert.False(t, res.ConsensusReached)
	assert.Equal(t, "v1", res.FinalText)
	assert.Equal(t, 1, res.RoundsCompleted)
}

func TestRevisionAdvancesRoundAndReopensCritique(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	runToDecision(t, s, "v1")

	require.NoError(t, s.SubmitLeadDecision("v2"))

	assert.Equal(t, models.StateAwaitingPeerCritique, s.State())
	assert.Equal(t, 2, s.Round())
	assert.Equal(t, "v2", s.LatestDraft())

	// Second cycle converges.
	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "ok"))
	require.NoError(t, s.SubmitPeerCritique("gemini", models.VerdictAgree, "ok"))
	require.NoError(t, s.SubmitLeadDecision(NoFurtherChanges))
	require.NoError(t, s.SubmitAgreement("codex", models.VerdictAgree, ""))
	require.NoError(t, s.SubmitAgreement("gemini", models.VerdictAgree, ""))

	res := s.Result()
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, "v2", res.FinalText)
	assert.Equal(t, 2, res.RoundsCompleted)
}

func TestRevisionPastMaxRoundsTerminates(t *testing.T) {
	s := newTestSession([]string{"codex"}, 1)
	runToDecision(t, s, "v1")

	require.NoError(t, s.SubmitLeadDecision("v2"))

	assert.Equal(t, models.StateMaxRoundsExceeded, s.State())
	res := s.Result()
	assert.False(t, res.ConsensusReached)
	assert.Equal(t, "v2", res.FinalText)
}

func TestRoundIsMonotonic(t *testing.T) {
	s := newTestSession([]string{"codex"}, 4)
	last := s.Round()

	check := func() {
		assert.GreaterOrEqual(t, s.Round(), last)
		last = s.Round()
	}

	require.NoError(t, s.SubmitLeadDraft("v1"))
	check()
	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictPartial, "tighten error handling"))
	check()
	require.NoError(t, s.SubmitLeadDecision("v2"))
	check()
	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "ok"))
	check()
	require.NoError(t, s.SubmitLeadDecision(NoFurtherChanges))
	check()
	require.NoError(t, s.SubmitAgreement("codex", models.VerdictDisagree, "nit"))
	check()
	assert.Equal(t, 3, s.Round())
}

func TestDuplicateSubmissions(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	require.NoError(t, s.SubmitLeadDraft("v1"))

	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "ok"))
	err := s.SubmitPeerCritique("codex", models.VerdictAgree, "ok again")
	var dup *DuplicateSubmissionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "codex", dup.Participant)
	assert.Equal(t, 1, dup.Round)
}

func TestUnknownParticipantRejected(t *testing.T) {
	s := newTestSession([]string{"codex"}, 3)
	require.NoError(t, s.SubmitLeadDraft("v1"))

	err := s.SubmitPeerCritique("gpt", models.VerdictAgree, "ok")
	var unk *UnknownParticipantError
	assert.ErrorAs(t, err, &unk)
}

func TestInvalidTransitions(t *testing.T) {
	s := newTestSession([]string{"codex"}, 3)

	var ite *InvalidTransitionError
	assert.ErrorAs(t, s.SubmitLeadDecision("v2"), &ite)
	assert.ErrorAs(t, s.SubmitAgreement("codex", models.VerdictAgree, ""), &ite)

	require.NoError(t, s.SubmitLeadDraft("v1"))
	assert.ErrorAs(t, s.SubmitLeadDraft("v1 again"), &ite)
	assert.ErrorAs(t, s.SubmitAgreement("codex", models.VerdictAgree, ""), &ite)
}

func TestMarkPeerUnavailable_CritiquePhase(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	require.NoError(t, s.SubmitLeadDraft("v1"))

	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "ok"))
	require.NoError(t, s.MarkPeerUnavailable("gemini"))

	assert.Equal(t, models.StateAwaitingLeadDecision, s.State())
	res := s.Result()
	assert.Contains(t, res.Diagnostics.FailedPeers, "gemini")
}

func TestMarkPeerUnavailable_AgreementCountsAsNonAgreement(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 1)
	runToDecision(t, s, "v1")
	require.NoError(t, s.SubmitLeadDecision(NoFurtherChanges))

	require.NoError(t, s.SubmitAgreement("codex", models.VerdictAgree, ""))
	require.NoError(t, s.MarkPeerUnavailable("gemini"))

	// Not unanimous and at the round bound: exhausted, not consensus.
	assert.Equal(t, models.StateMaxRoundsExceeded, s.State())
	res := s.Result()
	assert.False(t, res.ConsensusReached)
	assert.Equal(t, 1, res.FinalSilent) // gemini never actually responded
}

func TestForceExpireKeepsLatestDraft(t *testing.T) {
	s := newTestSession([]string{"codex"}, 5)
	require.NoError(t, s.SubmitLeadDraft("v1"))

	s.ForceExpire("session deadline exceeded")

	assert.Equal(t, models.StateMaxRoundsExceeded, s.State())
	res := s.Result()
	assert.False(t, res.ConsensusReached)
	assert.Equal(t, "v1", res.FinalText)
	assert.True(t, res.Diagnostics.ForcedTimeout)
	assert.Contains(t, res.Diagnostics.Warnings, "session deadline exceeded")

	// Idempotent on terminal sessions.
	s.ForceExpire("again")
	assert.Equal(t, "v1", s.Result().FinalText)
}

func TestPendingPeers(t *testing.T) {
	s := newTestSession([]string{"codex", "gemini"}, 3)
	assert.Nil(t, s.PendingPeers())

	require.NoError(t, s.SubmitLeadDraft("v1"))
	assert.ElementsMatch(t, []string{"codex", "gemini"}, s.PendingPeers())

	require.NoError(t, s.SubmitPeerCritique("codex", models.VerdictAgree, "ok"))
	assert.Equal(t, []string{"gemini"}, s.PendingPeers())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestSession([]string{"codex"}, 3)
	require.NoError(t, s.SubmitLeadDraft("v1"))

	snap := s.Snapshot()
	snap.Submissions[1] = nil
	snap.Peers[0] = "mutated"

	assert.Len(t, s.Snapshot().Submissions[1], 1)
	assert.Equal(t, []string{"codex"}, s.Peers())
}
