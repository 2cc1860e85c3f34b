package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/quorum/internal/ai"
	"github.com/joescharf/quorum/internal/git"
	"github.com/joescharf/quorum/internal/models"
	"github.com/joescharf/quorum/internal/orchestrator"
	"github.com/joescharf/quorum/internal/output"
	"github.com/joescharf/quorum/internal/progress"
	"github.com/joescharf/quorum/internal/report"
	"github.com/joescharf/quorum/internal/review"
)

var (
	reviewBase        string
	reviewTarget      string
	reviewRepo        string
	reviewLead        string
	reviewPeers       []string
	reviewMaxRounds   int
	reviewTokenBudget int
	reviewContext     string
	reviewContextFile string
	reviewReportDir   string
	reviewNoHistory   bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run a consensus review of the changes between two git refs",
	Long: `Run a multi-round consensus code review.

The changes between --base and --target are curated into a token-budgeted
summary, the lead model drafts a review, and the peer models critique it
until every peer agrees or the round limit is reached. The final review is
written as a markdown report with a YAML metadata sidecar.

Models are given as specs: a known CLI name (claude, codex, gemini),
anthropic:<model> for the Anthropic API, or name=cmd args for any CLI that
reads a prompt on stdin. Without --lead, installed AI CLIs are auto-detected
and the first one leads.`,
	Example: `  quorum review --base main
  quorum review --base main --target feature/auth --lead claude --peer codex --peer gemini
  quorum review --base v1.2.0 --lead claude --peer haiku=anthropic:claude-haiku-4-5-20251001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "Base git ref to diff against (required)")
	reviewCmd.Flags().StringVar(&reviewTarget, "target", "HEAD", "Target git ref")
	reviewCmd.Flags().StringVar(&reviewRepo, "repo", ".", "Repository path")
	reviewCmd.Flags().StringVar(&reviewLead, "lead", "", "Lead model spec (default: config ai.lead, then auto-detect)")
	reviewCmd.Flags().StringArrayVar(&reviewPeers, "peer", nil, "Peer model spec (repeatable; default: config ai.peers, then auto-detect)")
	reviewCmd.Flags().IntVar(&reviewMaxRounds, "max-rounds", 0, "Maximum consensus rounds (default: config review.max_rounds)")
	reviewCmd.Flags().IntVar(&reviewTokenBudget, "token-budget", 0, "Token budget for curated diff content (default: config review.token_budget)")
	reviewCmd.Flags().StringVar(&reviewContext, "context", "", "Extra reviewer context appended to the draft prompt")
	reviewCmd.Flags().StringVar(&reviewContextFile, "context-file", "", "File with extra reviewer context")
	reviewCmd.Flags().StringVar(&reviewReportDir, "report-dir", "", "Directory for report artifacts (default: config report_dir)")
	reviewCmd.Flags().BoolVar(&reviewNoHistory, "no-history", false, "Skip persisting the session to the database")
	_ = reviewCmd.MarkFlagRequired("base")

	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(cmd *cobra.Command) error {
	cfg := review.DefaultConfig()
	if reviewMaxRounds > 0 {
		cfg.MaxRounds = reviewMaxRounds
	}
	if reviewTokenBudget > 0 {
		cfg.TokenBudget = reviewTokenBudget
	}

	lead, peers, err := resolveParticipants()
	if err != nil {
		return err
	}

	extraContext := reviewContext
	if reviewContextFile != "" {
		data, err := os.ReadFile(reviewContextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		if extraContext != "" {
			extraContext += "\n\n"
		}
		extraContext += string(data)
	}

	svc := &review.Service{
		Git:    git.NewClient(),
		Caller: buildCaller(cfg),
	}
	if !reviewNoHistory && !dryRun {
		s, err := getStore()
		if err != nil {
			ui.Warning("Session history disabled: %v", err)
		} else {
			svc.Store = s
		}
	}

	reportDir := reviewReportDir
	if reportDir == "" {
		reportDir = viper.GetString("report_dir")
	}
	if !dryRun {
		svc.Reports = report.NewWriter(reportDir)
	}

	peerNames := make([]string, len(peers))
	for i, p := range peers {
		peerNames[i] = p.Name
	}
	ui.Info("Reviewing %s...%s with lead %s and peers [%s]",
		reviewBase, reviewTarget, output.Cyan(lead.Name), strings.Join(peerNames, ", "))

	if dryRun {
		ui.DryRunMsg("Would run up to %d rounds with a %d token budget", cfg.MaxRounds, cfg.TokenBudget)
		return nil
	}

	out, runErr := svc.Run(cmd.Context(), review.Options{
		RepoPath:     reviewRepo,
		BaseRef:      reviewBase,
		TargetRef:    reviewTarget,
		Lead:         lead,
		Peers:        peers,
		ExtraContext: extraContext,
		Config:       cfg,
		Progress:     progress.NewChannel(),
		Sink: func(u models.ProgressUpdate) {
			ui.Info("%s: %s", output.Cyan(u.Participant), u.Message)
		},
	})
	if runErr != nil {
		var lerr *orchestrator.LeadUnavailableError
		if errors.As(runErr, &lerr) && out != nil {
			ui.Error("Lead %s became unavailable; partial session saved as %s", lerr.Lead, out.Result.SessionID)
		}
		return runErr
	}

	printReviewSummary(out)
	return nil
}

func printReviewSummary(out *review.Outcome) {
	res := out.Result

	if cur := out.Curation; cur != nil {
		ui.VerboseLog("Curated %d of %d changed files (~%d tokens of %d budget)",
			len(cur.Curated), cur.TotalFiles, cur.EstimatedTokens, cur.TokenBudget)
		for _, sk := range cur.Skipped {
			ui.VerboseLog("skipped %s: %s", sk.Path, sk.Reason)
		}
	}

	total := 1 + len(res.Peers)
	switch {
	case res.ConsensusReached:
		ui.Success("Consensus reached after %d round(s): %d of %d participants endorsed the review",
			res.RoundsCompleted, res.FinalResponders, total)
	case res.Diagnostics.ForcedTimeout:
		ui.Warning("Session expired after %d round(s) without consensus; publishing the latest draft", res.RoundsCompleted)
	default:
		ui.Warning("No consensus after %d round(s); publishing the latest draft (%d of %d responded in the final round)",
			res.RoundsCompleted, res.FinalResponders, total)
	}

	if len(res.Diagnostics.FailedPeers) > 0 {
		ui.Warning("Peers that failed to respond: %s", strings.Join(res.Diagnostics.FailedPeers, ", "))
	}
	if n := res.Diagnostics.SkippedFiles; n > 0 {
		ui.Warning("%d file(s) were omitted from review by the token budget", n)
	}

	ui.Info("Session %s", res.SessionID)
	if out.ReportPath != "" {
		ui.Info("Report written to %s", out.ReportPath)
	} else {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, res.FinalText)
	}
}

// resolveParticipants picks the lead and peers from flags, then config, then
// auto-detection of installed AI CLIs.
func resolveParticipants() (ai.Model, []ai.Model, error) {
	leadSpec := reviewLead
	if leadSpec == "" {
		leadSpec = viper.GetString("ai.lead")
	}
	peerSpecs := reviewPeers
	if len(peerSpecs) == 0 {
		for _, s := range strings.Split(viper.GetString("ai.peers"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				peerSpecs = append(peerSpecs, s)
			}
		}
	}

	if leadSpec == "" {
		detected := ai.Detect()
		if len(detected) == 0 {
			return ai.Model{}, nil, fmt.Errorf("no AI CLIs found on PATH; install one of claude, codex, gemini or pass --lead")
		}
		lead := detected[0]
		var peers []ai.Model
		if len(peerSpecs) == 0 {
			peers = detected[1:]
		} else {
			var err error
			if peers, err = resolveSpecs(peerSpecs); err != nil {
				return ai.Model{}, nil, err
			}
		}
		return lead, peers, nil
	}

	lead, err := ai.Resolve(leadSpec)
	if err != nil {
		return ai.Model{}, nil, fmt.Errorf("invalid lead spec: %w", err)
	}
	peers, err := resolveSpecs(peerSpecs)
	if err != nil {
		return ai.Model{}, nil, err
	}
	return lead, peers, nil
}

func resolveSpecs(specs []string) ([]ai.Model, error) {
	var out []ai.Model
	for _, spec := range specs {
		m, err := ai.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid peer spec %q: %w", spec, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// buildCaller assembles the retrying caller stack: CLI adapter always, the
// Anthropic API adapter when configured.
func buildCaller(cfg review.Config) ai.Caller {
	router := &ai.Router{
		CLI: &ai.CLICaller{Timeout: cfg.PeerTimeout},
	}
	if key := viper.GetString("anthropic.api_key"); key != "" {
		router.Anthropic = ai.NewAnthropicCaller(key, viper.GetString("anthropic.model"))
	}
	return ai.NewRetrying(router, cfg.MaxAttempts)
}
