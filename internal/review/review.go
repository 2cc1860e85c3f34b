// Package review wires the full pipeline behind one entry point: curate the
// diff, drive the consensus session, persist the outcome, and write the
// report artifacts. Both the CLI and the MCP server go through Service.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/quorum/internal/ai"
	"github.com/joescharf/quorum/internal/consensus"
	"github.com/joescharf/quorum/internal/curator"
	"github.com/joescharf/quorum/internal/git"
	"github.com/joescharf/quorum/internal/models"
	"github.com/joescharf/quorum/internal/orchestrator"
	"github.com/joescharf/quorum/internal/progress"
	"github.com/joescharf/quorum/internal/report"
	"github.com/joescharf/quorum/internal/store"
)

// Config holds review run configuration.
type Config struct {
	MaxRounds      int
	TokenBudget    int
	PeerTimeout    time.Duration
	SessionTimeout time.Duration
	MaxAttempts    int
}

// DefaultConfig returns the default review config, reading from viper when
// available.
func DefaultConfig() Config {
	cfg := Config{
		MaxRounds:      viper.GetInt("review.max_rounds"),
		TokenBudget:    viper.GetInt("review.token_budget"),
		PeerTimeout:    viper.GetDuration("review.peer_timeout"),
		SessionTimeout: viper.GetDuration("review.session_timeout"),
		MaxAttempts:    viper.GetInt("review.max_attempts"),
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = consensus.DefaultMaxRounds
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = curator.DefaultTokenBudget
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = ai.DefaultCallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	return cfg
}

// Options describes one review run.
type Options struct {
	SessionID string // generated when empty
	RepoPath  string
	BaseRef   string
	TargetRef string

	Lead  ai.Model
	Peers []ai.Model

	ExtraContext string
	Config       Config

	// Progress and Sink are optional status hooks, forwarded to the
	// orchestrator.
	Progress *progress.Channel
	Sink     func(models.ProgressUpdate)
}

// Outcome is what a run hands back to its caller.
type Outcome struct {
	Result     models.Result
	Curation   *models.Curation
	ReportPath string
}

// Service runs consensus reviews. Store and Reports are optional; a nil
// store skips persistence and a nil writer skips artifacts.
type Service struct {
	Git     git.Client
	Caller  ai.Caller
	Store   store.Store
	Reports *report.Writer
}

// Run executes one review end to end. Curation failures are fatal and return
// before any AI invocation. A lead failure surfaces as
// orchestrator.LeadUnavailableError with the partial result attached; the
// partial outcome is still persisted and reported.
func (s *Service) Run(ctx context.Context, opts Options) (*Outcome, error) {
	if opts.SessionID == "" {
		opts.SessionID = store.NewULID()
	}
	cfg := opts.Config
	if cfg.MaxRounds <= 0 {
		cfg = DefaultConfig()
	}

	cur, err := curator.Curate(s.Git, opts.RepoPath, opts.BaseRef, opts.TargetRef, cfg.TokenBudget)
	if err != nil {
		return nil, err
	}
	curatedText := curator.Format(cur)

	peerNames := make([]string, len(opts.Peers))
	modelsByID := map[string]ai.Model{opts.Lead.Name: opts.Lead}
	for i, p := range opts.Peers {
		peerNames[i] = p.Name
		modelsByID[p.Name] = p
	}

	sess := consensus.New(opts.SessionID, opts.BaseRef, opts.TargetRef, opts.Lead.Name, peerNames, cfg.MaxRounds)
	sess.SetSkippedFiles(len(cur.Skipped))

	orch := orchestrator.New(s.Caller, modelsByID)
	orch.Deadline = cfg.SessionTimeout
	orch.Progress = opts.Progress
	orch.Sink = opts.Sink

	res, runErr := orch.Run(ctx, sess, curatedText, opts.ExtraContext)
	if lerr, ok := runErr.(*orchestrator.LeadUnavailableError); ok {
		res = lerr.Partial
	}

	out := &Outcome{Result: res, Curation: cur}

	if s.Store != nil {
		snap := sess.Snapshot()
		if err := s.Store.SaveSession(ctx, &snap); err != nil && runErr == nil {
			runErr = fmt.Errorf("save session: %w", err)
		}
	}
	if s.Reports != nil {
		path, err := s.Reports.Write(res)
		if err != nil && runErr == nil {
			runErr = err
		}
		out.ReportPath = path
	}

	return out, runErr
}
