package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatrelay/chatrelay/internal/circuit"
	"github.com/chatrelay/chatrelay/internal/classify"
	"github.com/chatrelay/chatrelay/internal/domain"
)

// Fetcher is the status-query collaborator the poller depends on.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, id domain.ConversationID) (Snapshot, error)
}

// Poller waits for a submitted conversation to finish. One poller instance
// is shared, but WaitForCompletion is independent per call: many waits run
// concurrently, one per outstanding request, and none of them hold the
// session lock.
type Poller struct {
	client   Fetcher
	interval time.Duration
	ceiling  time.Duration
	retries  int
	logger   *slog.Logger
}

func NewPoller(client Fetcher, interval, ceiling time.Duration, retries int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if ceiling <= 0 {
		ceiling = 2 * time.Hour
	}
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, interval: interval, ceiling: ceiling, retries: retries, logger: logger}
}

// WaitForCompletion polls until the newest conversation node is a finished
// assistant message with non-empty text, the ceiling elapses, the transient
// budget is exhausted, or ctx is cancelled.
func (p *Poller) WaitForCompletion(ctx context.Context, id domain.ConversationID) domain.Outcome {
	deadline := time.Now().Add(p.ceiling)

	// The budget tolerates `retries` consecutive transient failures; the
	// next one trips the breaker and aborts the wait.
	budget := circuit.NewBreaker(p.retries+1, p.ceiling)

	for {
		if err := ctx.Err(); err != nil {
			return domain.Failed(domain.KindUnknown, fmt.Sprintf("poll aborted: %v", err))
		}
		if time.Now().After(deadline) {
			return domain.TimedOut(fmt.Sprintf("no assistant reply within %s for conversation %s", p.ceiling, id))
		}

		snap, err := p.client.FetchSnapshot(ctx, id)
		if errors.Is(err, ErrNotReady) {
			// Conversation body still materializing; same as an empty mapping.
			if !p.sleep(ctx) {
				return domain.Failed(domain.KindUnknown, "poll aborted: context cancelled")
			}
			continue
		}
		if err != nil {
			kind := classify.ClassifyErr(err)
			p.logger.Warn("backend fetch failed",
				"conversation_id", string(id),
				"kind", kind.String(),
				"error", err)
			if !kind.Retryable() {
				return domain.Failed(kind, err.Error())
			}
			if budget.RecordFailure() {
				return domain.Failed(domain.KindTransientNetwork,
					fmt.Sprintf("backend unreachable after %d consecutive attempts: %v", p.retries+1, err))
			}
			if !p.sleep(ctx) {
				return domain.Failed(domain.KindUnknown, "poll aborted: context cancelled")
			}
			continue
		}
		budget.RecordSuccess()

		if snap.Empty {
			if !p.sleep(ctx) {
				return domain.Failed(domain.KindUnknown, "poll aborted: context cancelled")
			}
			continue
		}

		p.logger.Debug("latest node",
			"conversation_id", string(id),
			"role", snap.Role,
			"status", snap.Status)

		switch snap.Status {
		case statusFinished:
			if snap.Role == wantedRole && snap.Text != "" {
				return domain.Success(snap.Text)
			}
			// Finished node that isn't a usable assistant reply (e.g. the
			// echoed user message); wait for the next node.
		case "", statusInFlight:
			// Still generating.
		default:
			// Any other terminal status is surfaced rather than waited past.
			return domain.Failed(domain.KindUnknown,
				fmt.Sprintf("conversation %s ended with status %q", id, snap.Status))
		}

		if !p.sleep(ctx) {
			return domain.Failed(domain.KindUnknown, "poll aborted: context cancelled")
		}
	}
}

// sleep waits one poll interval, honoring cancellation. Returns false when
// ctx ended during the wait.
func (p *Poller) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
