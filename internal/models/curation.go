package models

// CuratedChange is one file's selected diff, with its priority tag and
// estimated token cost.
type CuratedChange struct {
	Path            string `json:"path"`
	Tier            int    `json:"tier"` // 1 (highest) to 5 (lowest)
	Reason          string `json:"reason"`
	Insertions      int    `json:"insertions"`
	Deletions       int    `json:"deletions"`
	Diff            string `json:"-"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// SkippedChange records a file left out of curation. No diff text is kept.
type SkippedChange struct {
	Path       string `json:"path"`
	Tier       int    `json:"tier"`
	Reason     string `json:"reason"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// Curation is the full output of the data curator for one base..target
// comparison.
type Curation struct {
	BaseRef         string          `json:"base_ref"`
	TargetRef       string          `json:"target_ref"`
	Curated         []CuratedChange `json:"curated"`
	Skipped         []SkippedChange `json:"skipped"`
	TotalFiles      int             `json:"total_files"`
	EstimatedTokens int             `json:"estimated_tokens"`
	TokenBudget     int             `json:"token_budget"`
}
