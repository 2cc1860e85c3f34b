// Package report renders a finished (or aborted) review session into a
// markdown artifact and a YAML metadata sidecar.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/quorum/internal/models"
)

// Metadata is the machine-readable sidecar written next to the markdown
// report.
type Metadata struct {
	SessionID        string    `yaml:"session_id"`
	BaseRef          string    `yaml:"base_ref"`
	TargetRef        string    `yaml:"target_ref"`
	Lead             string    `yaml:"lead"`
	Peers            []string  `yaml:"peers"`
	ConsensusReached bool      `yaml:"consensus_reached"`
	RoundsCompleted  int       `yaml:"rounds_completed"`
	FinalResponders  int       `yaml:"final_responders"`
	FinalSilent      int       `yaml:"final_silent"`
	FailedPeers      []string  `yaml:"failed_peers,omitempty"`
	SkippedFiles     int       `yaml:"skipped_files,omitempty"`
	ForcedTimeout    bool      `yaml:"forced_timeout,omitempty"`
	Warnings         []string  `yaml:"warnings,omitempty"`
	GeneratedAt      time.Time `yaml:"generated_at"`
}

// Writer writes report artifacts into a directory.
type Writer struct {
	Dir string

	now func() time.Time
}

// NewWriter creates a Writer targeting dir, creating it on first write.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

// Write renders the result and writes <session-id>.md plus <session-id>.yaml.
// Returns the markdown path.
func (w *Writer) Write(res models.Result) (string, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	mdPath := filepath.Join(w.Dir, res.SessionID+".md")
	if err := os.WriteFile(mdPath, []byte(Render(res)), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	meta := Metadata{
		SessionID:        res.SessionID,
		BaseRef:          res.BaseRef,
		TargetRef:        res.TargetRef,
		Lead:             res.Lead,
		Peers:            res.Peers,
		ConsensusReached: res.ConsensusReached,
		RoundsCompleted:  res.RoundsCompleted,
		FinalResponders:  res.FinalResponders,
		FinalSilent:      res.FinalSilent,
		FailedPeers:      res.Diagnostics.FailedPeers,
		SkippedFiles:     res.Diagnostics.SkippedFiles,
		ForcedTimeout:    res.Diagnostics.ForcedTimeout,
		Warnings:         res.Diagnostics.Warnings,
		GeneratedAt:      w.now(),
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal report metadata: %w", err)
	}
	yamlPath := filepath.Join(w.Dir, res.SessionID+".yaml")
	if err := os.WriteFile(yamlPath, data, 0644); err != nil {
		return "", fmt.Errorf("write report metadata: %w", err)
	}

	return mdPath, nil
}

// Render produces the full markdown report: an outcome banner, the final
// review text, and an appendix with the per-round submission history and any
// degradations.
func Render(res models.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review Session %s\n\n", res.SessionID)
	fmt.Fprintf(&b, "**Refs**: `%s...%s`  \n", res.BaseRef, res.TargetRef)
	fmt.Fprintf(&b, "**Lead**: %s  \n", res.Lead)
	fmt.Fprintf(&b, "**Peers**: %s\n\n", joinOrNone(res.Peers))

	b.WriteString(banner(res))
	b.WriteString("\n\n---\n\n## Final Review\n\n")
	if res.FinalText != "" {
		b.WriteString(res.FinalText)
	} else {
		b.WriteString("_No draft was produced before the session ended._")
	}
	b.WriteString("\n\n---\n\n## Session History\n\n")

	rounds := make([]int, 0, len(res.Submissions))
	for r := range res.Submissions {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	for _, r := range rounds {
		fmt.Fprintf(&b, "### Round %d\n\n", r)
		for _, sub := range res.Submissions[r] {
			label := string(sub.Phase)
			if sub.Verdict != "" {
				label += " / " + string(sub.Verdict)
			}
			if sub.Implicit {
				label += " (no response)"
			}
			fmt.Fprintf(&b, "- **%s** - %s\n", sub.Participant, label)
		}
		b.WriteString("\n")
	}

	if d := res.Diagnostics; len(d.FailedPeers) > 0 || d.SkippedFiles > 0 || d.ForcedTimeout || len(d.Warnings) > 0 {
		b.WriteString("## Diagnostics\n\n")
		if len(d.FailedPeers) > 0 {
			fmt.Fprintf(&b, "- Peers that failed to respond: %s\n", strings.Join(d.FailedPeers, ", "))
		}
		if d.SkippedFiles > 0 {
			fmt.Fprintf(&b, "- Files omitted from review by the token budget: %d\n", d.SkippedFiles)
		}
		if d.ForcedTimeout {
			b.WriteString("- Session was force-expired before completing naturally\n")
		}
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func banner(res models.Result) string {
	total := 1 + len(res.Peers)
	if res.ConsensusReached {
		return fmt.Sprintf("**Outcome**: CONSENSUS REACHED - %d of %d participants endorsed the final review after %d round(s).",
			res.FinalResponders, total, res.RoundsCompleted)
	}
	if res.Diagnostics.ForcedTimeout {
		return fmt.Sprintf("**Outcome**: EXPIRED WITHOUT CONSENSUS - the session was cut off after %d round(s); the latest draft is published below.",
			res.RoundsCompleted)
	}
	return fmt.Sprintf("**Outcome**: MAX ROUNDS EXCEEDED - no unanimous agreement after %d round(s); the latest draft is published below with %d of %d participants responding in the final round.",
		res.RoundsCompleted, res.FinalResponders, total)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
