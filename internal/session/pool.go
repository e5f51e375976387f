package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatrelay/chatrelay/internal/domain"
)

// Pool lazily creates and exposes exactly one Session. It is a factory plus
// a shared handle, not a queue: all serialization lives in the session's own
// lock. Safe for any number of concurrent callers.
type Pool struct {
	factory func() (*Session, error)

	once    sync.Once
	session *Session
	initErr error
}

// NewPool returns a pool that builds its session on first use. The factory
// runs at most once per process lifetime; if it fails, the failure is
// cached and every later call fails fast until restart.
func NewPool(factory func() (*Session, error)) *Pool {
	return &Pool{factory: factory}
}

// Ask routes one request through the shared session. The returned error is
// non-nil only for initialization failure; everything else is expressed as
// a classified Outcome.
func (p *Pool) Ask(ctx context.Context, prompt, model string) (domain.Outcome, error) {
	s, err := p.ensure()
	if err != nil {
		return domain.Outcome{}, err
	}
	return s.Ask(ctx, prompt, model), nil
}

// ensure performs the create-once initialization. sync.Once gives the
// double-checked guarantee: concurrent first calls block until the single
// construction finishes, and none of them spawn a second browser.
func (p *Pool) ensure() (*Session, error) {
	p.once.Do(func() {
		s, err := p.factory()
		if err != nil {
			p.initErr = fmt.Errorf("%w: %v", domain.ErrInitialization, err)
			return
		}
		p.session = s
	})
	return p.session, p.initErr
}

// Close shuts down the session if one was ever created.
func (p *Pool) Close() error {
	if p.session == nil {
		return nil
	}
	return p.session.Close()
}
