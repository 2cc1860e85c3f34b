// Package orchestrator drives a consensus session through its phases,
// dispatching AI caller invocations serially for the lead and in parallel
// for peers, and feeding results back into the session state machine.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/quorum/internal/ai"
	"github.com/joescharf/quorum/internal/consensus"
	"github.com/joescharf/quorum/internal/models"
	"github.com/joescharf/quorum/internal/progress"
	"github.com/joescharf/quorum/internal/prompt"
)

// LeadUnavailableError is fatal for a session: the lead has no fallback.
// Partial carries whatever result existed at the point of failure so partial
// artifacts can still be written.
type LeadUnavailableError struct {
	Lead    string
	Err     error
	Partial models.Result
}

func (e *LeadUnavailableError) Error() string {
	return fmt.Sprintf("lead %s unavailable: %v", e.Lead, e.Err)
}

func (e *LeadUnavailableError) Unwrap() error { return e.Err }

// Orchestrator owns one session for its lifetime and is the only mutator of
// its state; phase workers report back through the session's thread-safe
// submission calls.
type Orchestrator struct {
	Caller ai.Caller           // must carry its own retry policy
	Models map[string]ai.Model // participant id -> model handle

	// Progress and Sink enable the best-effort status side channel. Both
	// optional; polling errors never affect protocol correctness.
	Progress *progress.Channel
	Sink     func(models.ProgressUpdate)

	PollInterval time.Duration // default 2s
	Deadline     time.Duration // optional session wall-clock bound
	Grace        time.Duration // how long to wait for in-flight calls past the deadline
}

// New creates an orchestrator with default intervals.
func New(caller ai.Caller, modelsByID map[string]ai.Model) *Orchestrator {
	return &Orchestrator{
		Caller:       caller,
		Models:       modelsByID,
		PollInterval: 2 * time.Second,
		Grace:        5 * time.Second,
	}
}

// Run drives the session until it is terminal and returns its result.
// Peer failures degrade to implicit PARTIAL submissions; a lead failure
// aborts with LeadUnavailableError. A configured deadline forces early
// termination via the max-rounds-exceeded outcome: in-flight invocations get
// one grace period to land, then the session is expired without waiting for
// stragglers.
func (o *Orchestrator) Run(ctx context.Context, sess *consensus.Session, curatedText, extraContext string) (models.Result, error) {
	if o.Progress != nil && o.Sink != nil {
		stopPoll := make(chan struct{})
		defer close(stopPoll)
		go o.pollProgress(stopPoll)
	}

	var deadlineC <-chan time.Time
	if o.Deadline > 0 {
		timer := time.NewTimer(o.Deadline)
		defer timer.Stop()
		deadlineC = timer.C
	}

	for !sess.IsTerminal() {
		if ctx.Err() != nil {
			sess.ForceExpire("cancelled: " + ctx.Err().Error())
			break
		}

		phaseDone := make(chan error, 1)
		go func(state models.State) {
			phaseDone <- o.runPhase(ctx, sess, state, curatedText, extraContext)
		}(sess.State())

		select {
		case err := <-phaseDone:
			if err != nil {
				return sess.Result(), err
			}
		case <-deadlineC:
			grace := o.Grace
			if grace <= 0 {
				grace = time.Second
			}
			select {
			case err := <-phaseDone:
				if err != nil {
					return sess.Result(), err
				}
			case <-time.After(grace):
			}
			sess.ForceExpire("session deadline exceeded")
		}
	}

	return sess.Result(), nil
}

// runPhase executes the work for one protocol state. Only lead failures
// surface as errors.
func (o *Orchestrator) runPhase(ctx context.Context, sess *consensus.Session, state models.State, curatedText, extraContext string) error {
	switch state {
	case models.StateAwaitingInitialDraft:
		return o.leadDraft(ctx, sess, curatedText, extraContext)
	case models.StateAwaitingPeerCritique:
		o.peerCritiques(ctx, sess)
		return nil
	case models.StateAwaitingLeadDecision:
		return o.leadDecision(ctx, sess)
	case models.StateAwaitingAgreementCheck:
		o.agreementCheck(ctx, sess)
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) leadDraft(ctx context.Context, sess *consensus.Session, curatedText, extraContext string) error {
	lead := sess.Lead()
	o.publish(lead, "writing initial draft")

	p := prompt.InitialDraft(sess.ID(), lead, curatedText, extraContext)
	text, err := o.call(ctx, lead, p)
	if err != nil {
		return o.leadFailure(ctx, sess, lead, err)
	}
	return o.submit(sess, sess.SubmitLeadDraft(text))
}

func (o *Orchestrator) leadDecision(ctx context.Context, sess *consensus.Session) error {
	lead := sess.Lead()
	o.publish(lead, fmt.Sprintf("refining draft after round %d critiques", sess.Round()))

	crits := sess.CritiquesForDecision()
	pc := make([]prompt.Critique, len(crits))
	for i, c := range crits {
		pc[i] = prompt.Critique{Participant: c.Participant, Text: c.Text}
	}

	p := prompt.LeadRefinement(sess.ID(), lead, sess.LatestDraft(), pc)
	text, err := o.call(ctx, lead, p)
	if err != nil {
		return o.leadFailure(ctx, sess, lead, err)
	}
	return o.submit(sess, sess.SubmitLeadDecision(text))
}

// peerCritiques fans out one invocation per pending peer. A peer whose
// caller fails after retries is marked unavailable; the round never aborts
// for one peer.
func (o *Orchestrator) peerCritiques(ctx context.Context, sess *consensus.Session) {
	draft := sess.LatestDraft()
	round := sess.Round()

	var g errgroup.Group
	for _, peer := range sess.PendingPeers() {
		g.Go(func() error {
			o.publish(peer, fmt.Sprintf("critiquing draft, round %d", round))
			p := prompt.PeerCritique(sess.ID(), peer, draft, round)
			text, err := o.call(ctx, peer, p)
			if err != nil {
				o.publish(peer, "unavailable: "+err.Error())
				_ = sess.MarkPeerUnavailable(peer)
				return nil
			}
			_ = o.submit(sess, sess.SubmitPeerCritique(peer, critiqueVerdict(text), text))
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) agreementCheck(ctx context.Context, sess *consensus.Session) {
	final := sess.LatestDraft()

	var g errgroup.Group
	for _, peer := range sess.PendingPeers() {
		g.Go(func() error {
			o.publish(peer, "final agreement check")
			p := prompt.AgreementCheck(sess.ID(), peer, final)
			text, err := o.call(ctx, peer, p)
			if err != nil {
				o.publish(peer, "unavailable: "+err.Error())
				_ = sess.MarkPeerUnavailable(peer)
				return nil
			}
			verdict := agreementVerdict(text)
			rationale := ""
			if verdict == models.VerdictDisagree {
				rationale = text
			}
			_ = o.submit(sess, sess.SubmitAgreement(peer, verdict, rationale))
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) call(ctx context.Context, participant, promptText string) (string, error) {
	model, ok := o.Models[participant]
	if !ok {
		return "", fmt.Errorf("no model configured for participant %s", participant)
	}
	return o.Caller.Call(ctx, promptText, model)
}

// leadFailure distinguishes cancellation and deadline expiry, which end the
// session with its partial draft, from genuine lead unavailability, which is
// fatal.
func (o *Orchestrator) leadFailure(ctx context.Context, sess *consensus.Session, lead string, err error) error {
	if sess.IsTerminal() {
		return nil // deadline landed while the call was in flight
	}
	if ctx.Err() != nil {
		sess.ForceExpire("cancelled: " + ctx.Err().Error())
		return nil
	}
	return &LeadUnavailableError{Lead: lead, Err: err, Partial: sess.Result()}
}

// submit swallows submission errors that only mean the session was expired
// while a worker was in flight; anything else is a protocol bug and loud.
func (o *Orchestrator) submit(sess *consensus.Session, err error) error {
	if err == nil || sess.IsTerminal() {
		return nil
	}
	return err
}

func (o *Orchestrator) publish(participant, message string) {
	if o.Progress != nil {
		o.Progress.Publish(participant, message)
	}
}

// pollProgress forwards new progress updates to the sink at a fixed
// interval. Best-effort: late or dropped updates are acceptable, blocking
// the protocol is not.
func (o *Orchestrator) pollProgress(stop <-chan struct{}) {
	interval := o.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	flush := func() {
		for _, u := range o.Progress.Poll(last) {
			o.Sink(u)
			last = u.Timestamp
		}
	}

	for {
		select {
		case <-stop:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}
