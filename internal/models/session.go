package models

import "time"

// State is the consensus protocol phase a session is currently in.
type State string

const (
	StateAwaitingInitialDraft   State = "awaiting_initial_draft"
	StateAwaitingPeerCritique   State = "awaiting_peer_critique"
	StateAwaitingLeadDecision   State = "awaiting_lead_decision"
	StateAwaitingAgreementCheck State = "awaiting_agreement_check"
	StateConsensusReached       State = "consensus_reached"
	StateMaxRoundsExceeded      State = "max_rounds_exceeded"
)

// Terminal reports whether the state ends the protocol.
func (s State) Terminal() bool {
	return s == StateConsensusReached || s == StateMaxRoundsExceeded
}

// Verdict is a participant's stance on the lead's draft.
type Verdict string

const (
	VerdictAgree    Verdict = "AGREE"
	VerdictDisagree Verdict = "DISAGREE"
	VerdictPartial  Verdict = "PARTIAL"
)

// Phase identifies which protocol step produced a submission.
type Phase string

const (
	PhaseDraft     Phase = "draft"
	PhaseCritique  Phase = "critique"
	PhaseDecision  Phase = "decision"
	PhaseAgreement Phase = "agreement"
)

// Submission is one participant's recorded text for one round and phase.
type Submission struct {
	Participant string    `json:"participant"`
	Round       int       `json:"round"`
	Phase       Phase     `json:"phase"`
	Verdict     Verdict   `json:"verdict,omitempty"`
	Text        string    `json:"text"`
	Implicit    bool      `json:"implicit,omitempty"` // recorded on the peer's behalf after a failure or timeout
	SubmittedAt time.Time `json:"submitted_at"`
}

// Session is one consensus review run. The lead authors and revises the
// draft; peers critique it and vote. Submissions are keyed by round, then
// participant+phase.
type Session struct {
	ID               string               `json:"id"`
	BaseRef          string               `json:"base_ref"`
	TargetRef        string               `json:"target_ref"`
	Lead             string               `json:"lead"`
	Peers            []string             `json:"peers"`
	Round            int                  `json:"round"`
	MaxRounds        int                  `json:"max_rounds"`
	State            State                `json:"state"`
	Submissions      map[int][]Submission `json:"submissions"`
	ConsensusReached bool                 `json:"consensus_reached"`
	FinalText        string               `json:"final_text,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
}

// Participants returns the lead followed by all peers.
func (s *Session) Participants() []string {
	out := make([]string, 0, len(s.Peers)+1)
	out = append(out, s.Lead)
	out = append(out, s.Peers...)
	return out
}
