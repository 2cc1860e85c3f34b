package models

import "time"

// ProgressUpdate is an ephemeral status message published by a phase worker.
// It lives only in the progress channel's buffer and is never required for
// protocol correctness.
type ProgressUpdate struct {
	Participant string    `json:"participant"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Diagnostics collects everything that went sideways during a session:
// unresponsive peers, curation omissions, and forced terminations. Nothing
// here is fatal on its own, but none of it may be silently dropped.
type Diagnostics struct {
	FailedPeers   []string `json:"failed_peers,omitempty"`   // peers whose caller failed after retries
	SkippedFiles  int      `json:"skipped_files,omitempty"`  // curation omissions
	ForcedTimeout bool     `json:"forced_timeout,omitempty"` // session deadline forced termination
	Warnings      []string `json:"warnings,omitempty"`
}

// Result is the structural outcome of a session, handed to the report
// writer once the session is terminal.
type Result struct {
	SessionID        string               `json:"session_id"`
	BaseRef          string               `json:"base_ref"`
	TargetRef        string               `json:"target_ref"`
	FinalText        string               `json:"final_text"`
	ConsensusReached bool                 `json:"consensus_reached"`
	RoundsCompleted  int                  `json:"rounds_completed"`
	Lead             string               `json:"lead"`
	Peers            []string             `json:"peers"`
	Submissions      map[int][]Submission `json:"submissions"`
	FinalResponders  int                  `json:"final_responders"` // participants who answered in the final round
	FinalSilent      int                  `json:"final_silent"`     // participants who did not
	Diagnostics      Diagnostics          `json:"diagnostics"`
}
