package curator

import (
	"fmt"
	"strings"

	"github.com/joescharf/quorum/internal/models"
)

// maxSkippedListed caps how many skipped files are itemized in the
// formatted output.
const maxSkippedListed = 20

// Format renders a curation as the markdown blob embedded in review prompts.
// Output is deterministic for identical input.
func Format(cur *models.Curation) string {
	var ins, del int
	for _, c := range cur.Curated {
		ins += c.Insertions
		del += c.Deletions
	}

	var b strings.Builder
	b.WriteString("# Code Changes Summary\n\n")
	fmt.Fprintf(&b, "**Base**: `%s` → **Target**: `%s`\n\n", cur.BaseRef, cur.TargetRef)
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- **Total files changed**: %d\n", cur.TotalFiles)
	fmt.Fprintf(&b, "- **Files included in review**: %d (selected by priority)\n", len(cur.Curated))
	fmt.Fprintf(&b, "- **Files skipped**: %d (low priority or budget limit)\n", len(cur.Skipped))
	fmt.Fprintf(&b, "- **Lines**: +%d / -%d\n", ins, del)
	fmt.Fprintf(&b, "- **Token usage**: %d / %d\n\n", cur.EstimatedTokens, cur.TokenBudget)
	b.WriteString("---\n\n## Files Included (Priority-Ordered)\n\n")

	for i, c := range cur.Curated {
		fmt.Fprintf(&b, "### %d. `%s` (%s)\n\n", i+1, c.Path, c.Reason)
		fmt.Fprintf(&b, "**Priority**: %d | **Changes**: +%d / -%d\n\n", c.Tier, c.Insertions, c.Deletions)
		b.WriteString("```diff\n")
		b.WriteString(c.Diff)
		if !strings.HasSuffix(c.Diff, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n---\n\n")
	}

	if len(cur.Skipped) > 0 {
		fmt.Fprintf(&b, "## Files Skipped (%d files)\n\n", len(cur.Skipped))
		b.WriteString("These files were skipped due to low priority or token budget constraints:\n\n")
		for i, s := range cur.Skipped {
			if i >= maxSkippedListed {
				fmt.Fprintf(&b, "\n... and %d more files\n", len(cur.Skipped)-maxSkippedListed)
				break
			}
			fmt.Fprintf(&b, "- `%s` %s (+%d / -%d)\n", s.Path, s.Reason, s.Insertions, s.Deletions)
		}
	}

	return b.String()
}
