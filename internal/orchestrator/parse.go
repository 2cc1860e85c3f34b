package orchestrator

import (
	"strings"

	"github.com/joescharf/quorum/internal/models"
)

// ParseVerdict extracts a reviewer's stance from a response. It looks for a
// `VERDICT: <stance>` line first, then for a bare stance token at the start
// of a line. Matching is lexical and case-insensitive, as in the upstream
// response parser.
func ParseVerdict(text string) (models.Verdict, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		line = strings.TrimPrefix(line, "**")
		if rest, ok := strings.CutPrefix(line, "VERDICT:"); ok {
			line = strings.TrimSpace(rest)
		}
		switch {
		case strings.HasPrefix(line, "AGREE"):
			return models.VerdictAgree, true
		case strings.HasPrefix(line, "DISAGREE"):
			return models.VerdictDisagree, true
		case strings.HasPrefix(line, "PARTIAL"):
			return models.VerdictPartial, true
		}
	}
	return "", false
}

// critiqueVerdict is lenient: a critique without a clear stance is PARTIAL,
// since it carries content but no endorsement.
func critiqueVerdict(text string) models.Verdict {
	if v, ok := ParseVerdict(text); ok {
		return v
	}
	return models.VerdictPartial
}

// agreementVerdict is strict: anything other than a clear AGREE counts as
// DISAGREE, so a malformed reply can never fake consensus.
func agreementVerdict(text string) models.Verdict {
	if v, ok := ParseVerdict(text); ok && v == models.VerdictAgree {
		return models.VerdictAgree
	}
	return models.VerdictDisagree
}
