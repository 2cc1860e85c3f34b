// Package consensus implements the multi-round review protocol state
// machine. One lead participant authors and revises a draft review; peer
// participants critique each draft and finally vote on it. The session owns
// round progression and termination; it performs no I/O and knows nothing
// about how submissions are produced.
package consensus

import (
	"strings"
	"sync"
	"time"

	"github.com/joescharf/quorum/internal/models"
)

// NoFurtherChanges is the sentinel the lead emits verbatim to signal the
// draft needs no more revision. Detection is substring-based so surrounding
// commentary does not hide it.
const NoFurtherChanges = "NO_FURTHER_CHANGES"

// DefaultMaxRounds bounds round progression when the caller does not.
const DefaultMaxRounds = 5

// Critique pairs a participant with the critique text the lead should read
// during refinement.
type Critique struct {
	Participant string
	Text        string
}

// Session drives one consensus review run. All submission methods are safe
// for concurrent use; each takes a short critical section that validates
// state, records, and checks phase completion.
type Session struct {
	mu sync.Mutex

	data models.Session

	// carryover holds DISAGREE rationales from a failed agreement check,
	// fed to the lead as additional critique input in the next cycle.
	carryover []Critique

	diags models.Diagnostics
	now   func() time.Time
}

// New creates a session in the awaiting-initial-draft state. A session with
// no peers is valid: it reaches consensus immediately after the initial
// draft, since peer participation is optional and only the lead is
// mandatory.
func New(id, baseRef, targetRef, lead string, peers []string, maxRounds int) *Session {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Session{
		data: models.Session{
			ID:          id,
			BaseRef:     baseRef,
			TargetRef:   targetRef,
			Lead:        lead,
			Peers:       peers,
			Round:       1,
			MaxRounds:   maxRounds,
			State:       models.StateAwaitingInitialDraft,
			Submissions: make(map[int][]models.Submission),
			CreatedAt:   time.Now().UTC(),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// State returns the current protocol state.
func (s *Session) State() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// IsTerminal reports whether the session has finished.
func (s *Session) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State.Terminal()
}

// Round returns the current round number.
func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Round
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.data.ID
}

// Peers returns the configured peer identifiers.
func (s *Session) Peers() []string {
	return s.data.Peers
}

// Lead returns the lead identifier.
func (s *Session) Lead() string {
	return s.data.Lead
}

// SubmitLeadDraft records the lead's initial draft for round 1 and opens the
// peer critique phase. With no peers configured the session is immediately
// terminal with consensus reached.
func (s *Session) SubmitLeadDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State != models.StateAwaitingInitialDraft {
		return &InvalidTransitionError{Op: "submit lead draft", State: s.data.State}
	}

	s.record(models.Submission{
		Participant: s.data.Lead,
		Round:       s.data.Round,
		Phase:       models.PhaseDraft,
		Text:        text,
	})

	if len(s.data.Peers) == 0 {
		s.finish(models.StateConsensusReached, text)
		return nil
	}

	s.data.State = models.StateAwaitingPeerCritique
	return nil
}

// SubmitPeerCritique records one peer's critique of the current draft. Once
// every peer has submitted for the current round the session moves to the
// lead decision phase.
func (s *Session) SubmitPeerCritique(participant string, verdict models.Verdict, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State != models.StateAwaitingPeerCritique {
		return &InvalidTransitionError{Op: "submit peer critique", State: s.data.State}
	}
	if err := s.checkPeer(participant, models.PhaseCritique); err != nil {
		return err
	}

	s.record(models.Submission{
		Participant: participant,
		Round:       s.data.Round,
		Phase:       models.PhaseCritique,
		Verdict:     verdict,
		Text:        text,
	})

	if s.phaseComplete(models.PhaseCritique) {
		s.data.State = models.StateAwaitingLeadDecision
	}
	return nil
}

// SubmitLeadDecision records the lead's refinement response. A response
// containing the NoFurtherChanges sentinel moves to the agreement check
// without advancing the round. Anything else is a revision: the round
// advances and the new draft is stored, unless that would exceed the round
// bound, in which case the session terminates with the revision as the
// final, non-consensus text.
func (s *Session) SubmitLeadDecision(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State != models.StateAwaitingLeadDecision {
		return &InvalidTransitionError{Op: "submit lead decision", State: s.data.State}
	}

	s.record(models.Submission{
		Participant: s.data.Lead,
		Round:       s.data.Round,
		Phase:       models.PhaseDecision,
		Text:        text,
	})

	if strings.Contains(text, NoFurtherChanges) {
		s.data.State = models.StateAwaitingAgreementCheck
		return nil
	}

	// Revision: the decision text is the new draft.
	if s.data.Round+1 > s.data.MaxRounds {
		s.finish(models.StateMaxRoundsExceeded, text)
		return nil
	}
	s.data.Round++
	s.record(models.Submission{
		Participant: s.data.Lead,
		Round:       s.data.Round,
		Phase:       models.PhaseDraft,
		Text:        text,
	})
	s.carryover = nil
	s.data.State = models.StateAwaitingPeerCritique
	return nil
}

// SubmitAgreement records one peer's final vote on the lead's draft. Once
// every peer has voted: unanimous AGREE reaches consensus; any other outcome
// advances the round and reopens peer critique, carrying the dissenting
// rationale forward, or terminates if the round bound is hit.
func (s *Session) SubmitAgreement(participant string, verdict models.Verdict, rationale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State != models.StateAwaitingAgreementCheck {
		return &InvalidTransitionError{Op: "submit agreement", State: s.data.State}
	}
	if err := s.checkPeer(participant, models.PhaseAgreement); err != nil {
		return err
	}

	s.record(models.Submission{
		Participant: participant,
		Round:       s.data.Round,
		Phase:       models.PhaseAgreement,
		Verdict:     verdict,
		Text:        rationale,
	})

	if !s.phaseComplete(models.PhaseAgreement) {
		return nil
	}
	s.resolveAgreement()
	return nil
}

// MarkPeerUnavailable records an implicit submission on behalf of a peer
// whose invocation failed or timed out: an empty PARTIAL critique during the
// critique phase, a PARTIAL (non-agreeing) vote during the agreement check.
// The omission is logged in the session diagnostics. Never fatal.
func (s *Session) MarkPeerUnavailable(participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var phase models.Phase
	switch s.data.State {
	case models.StateAwaitingPeerCritique:
		phase = models.PhaseCritique
	case models.StateAwaitingAgreementCheck:
		phase = models.PhaseAgreement
	default:
		return &InvalidTransitionError{Op: "mark peer unavailable", State: s.data.State}
	}
	if err := s.checkPeer(participant, phase); err != nil {
		return err
	}

	s.record(models.Submission{
		Participant: participant,
		Round:       s.data.Round,
		Phase:       phase,
		Verdict:     models.VerdictPartial,
		Implicit:    true,
	})
	s.diags.FailedPeers = appendUnique(s.diags.FailedPeers, participant)

	if !s.phaseComplete(phase) {
		return nil
	}
	if phase == models.PhaseCritique {
		s.data.State = models.StateAwaitingLeadDecision
		return nil
	}
	s.resolveAgreement()
	return nil
}

// ForceExpire terminates a non-terminal session due to a deadline, keeping
// whatever draft exists as the final text.
func (s *Session) ForceExpire(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State.Terminal() {
		return
	}
	s.diags.ForcedTimeout = true
	if reason != "" {
		s.diags.Warnings = append(s.diags.Warnings, reason)
	}
	s.finish(models.StateMaxRoundsExceeded, s.latestDraft())
}

// LatestDraft returns the lead's most recent draft text.
func (s *Session) LatestDraft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestDraft()
}

// CritiquesForDecision returns what the lead should read before refining:
// the current round's peer critiques, preceded by any dissenting rationale
// carried over from a failed agreement check.
func (s *Session) CritiquesForDecision() []Critique {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]Critique(nil), s.carryover...)
	for _, sub := range s.data.Submissions[s.data.Round] {
		if sub.Phase == models.PhaseCritique {
			out = append(out, Critique{Participant: sub.Participant, Text: sub.Text})
		}
	}
	return out
}

// PendingPeers returns the peers that have not yet submitted for the current
// phase. Empty outside the two peer phases.
func (s *Session) PendingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var phase models.Phase
	switch s.data.State {
	case models.StateAwaitingPeerCritique:
		phase = models.PhaseCritique
	case models.StateAwaitingAgreementCheck:
		phase = models.PhaseAgreement
	default:
		return nil
	}

	var pending []string
	for _, p := range s.data.Peers {
		if !s.hasSubmission(p, s.data.Round, phase) {
			pending = append(pending, p)
		}
	}
	return pending
}

// AddWarning appends a diagnostic warning to the session.
func (s *Session) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags.Warnings = append(s.diags.Warnings, msg)
}

// Result snapshots the session outcome. Valid at any point; callers use it
// both for terminal results and for partial history on hard failure.
func (s *Session) Result() models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make(map[int][]models.Submission, len(s.data.Submissions))
	for round, list := range s.data.Submissions {
		subs[round] = append([]models.Submission(nil), list...)
	}

	responders, silent := s.finalRoundResponders()

	return models.Result{
		SessionID:        s.data.ID,
		BaseRef:          s.data.BaseRef,
		TargetRef:        s.data.TargetRef,
		FinalText:        s.data.FinalText,
		ConsensusReached: s.data.ConsensusReached,
		RoundsCompleted:  s.data.Round,
		Lead:             s.data.Lead,
		Peers:            append([]string(nil), s.data.Peers...),
		Submissions:      subs,
		FinalResponders:  responders,
		FinalSilent:      silent,
		Diagnostics:      s.diags,
	}
}

// Snapshot returns a copy of the underlying session record for persistence.
func (s *Session) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.data
	cp.Peers = append([]string(nil), s.data.Peers...)
	cp.Submissions = make(map[int][]models.Submission, len(s.data.Submissions))
	for round, list := range s.data.Submissions {
		cp.Submissions[round] = append([]models.Submission(nil), list...)
	}
	return cp
}

// SetSkippedFiles records the curation omission count in diagnostics.
func (s *Session) SetSkippedFiles(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags.SkippedFiles = n
}

// --- internals (callers hold s.mu) ---

func (s *Session) record(sub models.Submission) {
	sub.SubmittedAt = s.now()
	s.data.Submissions[sub.Round] = append(s.data.Submissions[sub.Round], sub)
}

func (s *Session) checkPeer(participant string, phase models.Phase) error {
	found := false
	for _, p := range s.data.Peers {
		if p == participant {
			found = true
			break
		}
	}
	if !found {
		return &UnknownParticipantError{Participant: participant}
	}
	if s.hasSubmission(participant, s.data.Round, phase) {
		return &DuplicateSubmissionError{Participant: participant, Round: s.data.Round, Phase: phase}
	}
	return nil
}

func (s *Session) hasSubmission(participant string, round int, phase models.Phase) bool {
	for _, sub := range s.data.Submissions[round] {
		if sub.Participant == participant && sub.Phase == phase {
			return true
		}
	}
	return false
}

func (s *Session) phaseComplete(phase models.Phase) bool {
	for _, p := range s.data.Peers {
		if !s.hasSubmission(p, s.data.Round, phase) {
			return false
		}
	}
	return true
}

// resolveAgreement closes a completed agreement check: unanimous AGREE
// reaches consensus, anything else loops or exhausts the round bound.
func (s *Session) resolveAgreement() {
	allAgree := true
	var dissent []Critique
	for _, sub := range s.data.Submissions[s.data.Round] {
		if sub.Phase != models.PhaseAgreement {
			continue
		}
		if sub.Verdict != models.VerdictAgree {
			allAgree = false
			if sub.Text != "" {
				dissent = append(dissent, Critique{Participant: sub.Participant, Text: sub.Text})
			}
		}
	}

	if allAgree {
		s.finish(models.StateConsensusReached, s.latestDraft())
		return
	}
	if s.data.Round >= s.data.MaxRounds {
		s.finish(models.StateMaxRoundsExceeded, s.latestDraft())
		return
	}
	s.data.Round++
	s.carryover = dissent
	s.data.State = models.StateAwaitingPeerCritique
}

func (s *Session) latestDraft() string {
	for round := s.data.Round; round >= 1; round-- {
		for i := len(s.data.Submissions[round]) - 1; i >= 0; i-- {
			sub := s.data.Submissions[round][i]
			if sub.Participant == s.data.Lead && sub.Phase == models.PhaseDraft {
				return sub.Text
			}
		}
	}
	return ""
}

func (s *Session) finish(state models.State, finalText string) {
	s.data.State = state
	s.data.FinalText = finalText
	s.data.ConsensusReached = state == models.StateConsensusReached
	now := s.now()
	s.data.CompletedAt = &now
}

// finalRoundResponders counts who answered every phase they were asked in
// the final round. A participant with any implicit (recorded-on-their-behalf)
// submission, or none at all, did not successfully respond.
func (s *Session) finalRoundResponders() (responders, silent int) {
	explicit := make(map[string]bool)
	implicit := make(map[string]bool)
	for _, sub := range s.data.Submissions[s.data.Round] {
		if sub.Implicit {
			implicit[sub.Participant] = true
		} else {
			explicit[sub.Participant] = true
		}
	}
	for _, p := range append([]string{s.data.Lead}, s.data.Peers...) {
		if explicit[p] && !implicit[p] {
			responders++
		} else {
			silent++
		}
	}
	return responders, silent
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
