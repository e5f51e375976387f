// Package session serializes access to the one interactive browser tab and
// coordinates the async completion wait. The invariant everything else
// depends on: the browser lock is held for the submission phase only (page
// load through redirect), never for the reply-generation wait, so polling
// for many requests proceeds concurrently while submissions queue.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/automator"
	"github.com/chatrelay/chatrelay/internal/circuit"
	"github.com/chatrelay/chatrelay/internal/classify"
	"github.com/chatrelay/chatrelay/internal/correlate"
	"github.com/chatrelay/chatrelay/internal/domain"
)

// Poller is the completion-wait collaborator. It must not require any lock.
type Poller interface {
	WaitForCompletion(ctx context.Context, id domain.ConversationID) domain.Outcome
}

// Options bound the submit phase and the retry loop.
type Options struct {
	SubmitTimeout time.Duration // explicit wait for the conversation redirect
	Retries       int           // transient retry budget for the whole submit-then-poll cycle
	Bell          bool          // ring the terminal bell on success
	Logger        *slog.Logger

	// After this many consecutive submission faults the session refuses new
	// submissions for the cooldown period.
	FaultThreshold int
	FaultCooldown  time.Duration
}

// Session owns the exclusive browser resource.
type Session struct {
	// ID identifies this browser instance in logs and responses.
	ID string

	automator automator.Automator
	poller    Poller
	opts      Options
	breaker   *circuit.Breaker

	// Binary semaphore rather than sync.Mutex so acquisition can honor
	// context cancellation. Nested acquisition never happens: the session
	// calls down into the automator, never into itself.
	mu         chan struct{}
	lastUsedAt time.Time
}

// New wires a session around an already-launched automator.
func New(a automator.Automator, p Poller, opts Options) *Session {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 15 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FaultThreshold <= 0 {
		opts.FaultThreshold = 5
	}
	if opts.FaultCooldown <= 0 {
		opts.FaultCooldown = time.Minute
	}

	s := &Session{
		ID:        uuid.NewString(),
		automator: a,
		poller:    p,
		opts:      opts,
		breaker:   circuit.NewBreaker(opts.FaultThreshold, opts.FaultCooldown),
		mu:        make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

// Ask submits the prompt and waits for the assistant reply. Transient
// failures restart the whole submit-then-poll cycle, bounded by the retry
// budget; every other failure is terminal. Exactly one Outcome is returned
// per call.
func (s *Session) Ask(ctx context.Context, prompt, model string) domain.Outcome {
	attempts := 0
	for {
		tag := correlate.New()
		req := domain.Request{
			Prompt: correlate.Embed(prompt, tag),
			Model:  model,
			Tag:    tag,
		}

		convID, err := s.submit(ctx, req)
		if err != nil {
			kind := classify.ClassifyErr(err)
			s.opts.Logger.Warn("submission failed",
				"session_id", s.ID,
				"tag", string(tag),
				"kind", kind.String(),
				"attempt", attempts,
				"error", err)
			if kind.Retryable() && attempts < s.opts.Retries {
				attempts++
				continue
			}
			return domain.Failed(kind, err.Error())
		}

		// Tag-to-handle mapping; the tag is also recoverable from the
		// echoed content if the redirect is ever in doubt.
		s.opts.Logger.Info("prompt submitted",
			"session_id", s.ID,
			"tag", string(tag),
			"conversation_id", string(convID))

		// The browser lock is released by now: the wait below runs
		// concurrently with other callers' submissions.
		out := s.poller.WaitForCompletion(ctx, convID)

		switch out.Status {
		case domain.OutcomeFailed:
			if out.Kind.Retryable() && attempts < s.opts.Retries {
				attempts++
				continue
			}
			return out
		case domain.OutcomeSuccess:
			// An error bubble can be echoed through the backend as the
			// "reply"; classify the text before trusting it.
			if kind := classify.Classify(out.Text); kind != domain.KindNone {
				if kind.Retryable() && attempts < s.opts.Retries {
					attempts++
					continue
				}
				return domain.Failed(kind, out.Text)
			}
			if s.opts.Bell {
				fmt.Fprint(os.Stdout, "\a")
			}
			return out
		default:
			return out
		}
	}
}

// submit drives the browser through one submission: acquire the lock, open a
// fresh chat, type the tagged prompt, send, and wait for the conversation
// redirect. The lock is released on every exit path, the hold is bounded by
// SubmitTimeout, and it is never held while polling.
func (s *Session) submit(ctx context.Context, req domain.Request) (domain.ConversationID, error) {
	if s.breaker.Tripped() {
		return "", domain.NewSubmitError(domain.KindUnknown,
			fmt.Sprintf("browser cooling down for %s after repeated faults", s.breaker.CooldownRemaining().Round(time.Second)),
			nil)
	}

	select {
	case <-s.mu:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { s.mu <- struct{}{} }()

	s.lastUsedAt = time.Now()

	sctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()

	if err := s.automator.OpenNewChat(sctx, req.Model); err != nil {
		s.breaker.RecordFailure()
		return "", s.wrapSubmitErr(sctx, err)
	}

	convID, err := s.automator.SubmitPrompt(sctx, req.Prompt)
	if err != nil {
		s.breaker.RecordFailure()
		return "", s.wrapSubmitErr(sctx, err)
	}

	s.breaker.RecordSuccess()
	return convID, nil
}

// wrapSubmitErr enriches an automation failure with the UI error bubble, if
// one is on screen, so the classifier sees what the user would see.
func (s *Session) wrapSubmitErr(ctx context.Context, err error) error {
	// Short, independent deadline: the submit context may already be dead.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if bubble, uiErr := s.automator.UIError(uctx); uiErr == nil && bubble != "" {
		if kind := classify.Classify(bubble); kind != domain.KindNone {
			return domain.NewSubmitError(kind, bubble, err)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", domain.ErrSubmissionTimeout, err)
	}
	return err
}

// LastUsedAt reports the start of the most recent submission.
func (s *Session) LastUsedAt() time.Time { return s.lastUsedAt }

// Close tears down the underlying browser.
func (s *Session) Close() error {
	return s.automator.Close()
}
