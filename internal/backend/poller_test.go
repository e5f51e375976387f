package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chatrelay/chatrelay/internal/domain"
)

// scriptedFetcher returns its steps in order, repeating the last one.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

type fetchStep struct {
	snap Snapshot
	err  error
}

func (f *scriptedFetcher) FetchSnapshot(ctx context.Context, id domain.ConversationID) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[min(f.calls, len(f.steps)-1)]
	f.calls++
	return step.snap, step.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(f Fetcher, ceiling time.Duration, retries int) *Poller {
	return NewPoller(f, time.Millisecond, ceiling, retries, quietLogger())
}

func TestPoller_Success(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{snap: Snapshot{Empty: true}},
		{snap: Snapshot{Role: "user", Status: "finished_successfully", Text: "hello?"}},
		{snap: Snapshot{Role: "assistant", Status: "in_progress", Text: "part"}},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "the reply"}},
	}}

	out := newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-1")
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("status = %v (%s), want success", out.Status, out.Detail)
	}
	if out.Text != "the reply" {
		t.Errorf("text = %q, want %q", out.Text, "the reply")
	}
}

func TestPoller_ThoughtsNodeIsNotTerminal(t *testing.T) {
	// A finished assistant node with empty text (interim chain of thought)
	// must not terminate the wait.
	f := &scriptedFetcher{steps: []fetchStep{
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: ""}},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "final"}},
	}}

	out := newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-2")
	if out.Status != domain.OutcomeSuccess || out.Text != "final" {
		t.Fatalf("got (%v, %q), want (success, final)", out.Status, out.Text)
	}
	if f.callCount() < 2 {
		t.Errorf("expected poller to keep waiting past the empty node")
	}
}

func TestPoller_NonSuccessTerminalStatusIsUnknown(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{snap: Snapshot{Role: "assistant", Status: "failed", Text: "partial"}},
	}}

	out := newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-3")
	if out.Status != domain.OutcomeFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Kind != domain.KindUnknown {
		t.Errorf("kind = %v, want unknown", out.Kind)
	}
}

func TestPoller_TransientBudget(t *testing.T) {
	transient := &StatusError{Status: 503, Snippet: "upstream sad"}

	// Exactly `retries` consecutive failures then success: must succeed.
	f := &scriptedFetcher{steps: []fetchStep{
		{err: transient},
		{err: transient},
		{err: transient},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "ok"}},
	}}
	out := newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-4")
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("3 failures with budget 3: status = %v (%s), want success", out.Status, out.Detail)
	}

	// One more consecutive failure than the budget: must abort transient.
	f = &scriptedFetcher{steps: []fetchStep{
		{err: transient}, {err: transient}, {err: transient}, {err: transient},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "never seen"}},
	}}
	out = newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-5")
	if out.Status != domain.OutcomeFailed || out.Kind != domain.KindTransientNetwork {
		t.Fatalf("4 failures with budget 3: got (%v, %v), want (failed, transient)", out.Status, out.Kind)
	}
	if f.callCount() != 4 {
		t.Errorf("fetch called %d times, want 4", f.callCount())
	}
}

func TestPoller_SuccessResetsTransientBudget(t *testing.T) {
	transient := &StatusError{Status: 502, Snippet: ""}
	f := &scriptedFetcher{steps: []fetchStep{
		{err: transient},
		{snap: Snapshot{Empty: true}}, // good fetch, resets the budget
		{err: transient},
		{snap: Snapshot{Empty: true}},
		{err: transient},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "done"}},
	}}

	out := newTestPoller(f, time.Second, 1).WaitForCompletion(context.Background(), "conv-6")
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("interleaved failures must not exhaust the budget: %v (%s)", out.Status, out.Detail)
	}
}

func TestPoller_NotReadyKeepsWaiting(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{err: fmt.Errorf("%w: empty body", ErrNotReady)},
		{err: fmt.Errorf("%w: body not valid JSON", ErrNotReady)},
		{snap: Snapshot{Role: "assistant", Status: "finished_successfully", Text: "late"}},
	}}

	// Budget 0: not-ready answers must not count as transient failures.
	out := newTestPoller(f, time.Second, 0).WaitForCompletion(context.Background(), "conv-10")
	if out.Status != domain.OutcomeSuccess || out.Text != "late" {
		t.Fatalf("got (%v, %q), want (success, late)", out.Status, out.Text)
	}
}

func TestPoller_NonTransientFetchErrorIsTerminal(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{err: errors.New("auth token rejected")},
	}}

	out := newTestPoller(f, time.Second, 3).WaitForCompletion(context.Background(), "conv-7")
	if out.Status != domain.OutcomeFailed || out.Kind != domain.KindUnknown {
		t.Fatalf("got (%v, %v), want (failed, unknown)", out.Status, out.Kind)
	}
	if f.callCount() != 1 {
		t.Errorf("non-transient error must not be retried, fetch called %d times", f.callCount())
	}
}

func TestPoller_TimedOutAtCeiling(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{snap: Snapshot{Role: "assistant", Status: "in_progress", Text: "forever"}},
	}}

	ceiling := 50 * time.Millisecond
	start := time.Now()
	out := newTestPoller(f, ceiling, 3).WaitForCompletion(context.Background(), "conv-8")
	elapsed := time.Since(start)

	if out.Status != domain.OutcomeTimedOut {
		t.Fatalf("status = %v, want timed_out", out.Status)
	}
	if elapsed < ceiling {
		t.Errorf("timed out after %v, before the %v ceiling", elapsed, ceiling)
	}
}

func TestPoller_ContextCancellation(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		{snap: Snapshot{Role: "assistant", Status: "in_progress"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.Outcome, 1)
	go func() {
		done <- newTestPoller(f, time.Hour, 3).WaitForCompletion(ctx, "conv-9")
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		if out.Status != domain.OutcomeFailed {
			t.Errorf("status = %v, want failed after cancellation", out.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}
