// Package automator drives one chat UI tab over the browser's DevTools
// protocol. It exposes exactly the two operations the session layer needs:
// submit a prompt (returning the conversation handle from the redirect) and
// read the current UI error bubble, if any.
package automator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/domain"
)

const (
	homeURL         = "https://chatgpt.com/"
	domPollInterval = 200 * time.Millisecond
	pasteChunkSize  = 50000
)

// Automator is the UI-automation collaborator consumed by the session.
type Automator interface {
	// OpenNewChat navigates to a fresh conversation, optionally targeting a
	// model, and waits for the composer to be ready.
	OpenNewChat(ctx context.Context, model string) error

	// SubmitPrompt types the text, presses send, and waits (bounded by ctx)
	// for the conversation redirect. Returns the conversation handle.
	SubmitPrompt(ctx context.Context, text string) (domain.ConversationID, error)

	// UIError returns the text of a visible error bubble, or "".
	UIError(ctx context.Context) (string, error)

	Close() error
}

// Config holds browser settings. Zero values fall back to sane defaults.
type Config struct {
	Binary      string
	ProfileDir  string // empty = throwaway temp profile
	DebugPort   int    // 0 = pick a free port
	Headless    bool
	TypingMode  string // normal | fast | paste
	KeyDelayMin time.Duration
	KeyDelayMax time.Duration
	Logger      *slog.Logger
}

// ChromeAutomator is the production Automator: one Chrome process, one tab.
type ChromeAutomator struct {
	cfg         Config
	cmd         *exec.Cmd
	conn        *rpcConn
	profileDir  string
	tempProfile bool
	logger      *slog.Logger
}

var _ Automator = (*ChromeAutomator)(nil)

// Launch starts the browser, opens a tab, connects the protocol socket and
// loads the landing page.
func Launch(ctx context.Context, cfg Config) (*ChromeAutomator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tempProfile := cfg.ProfileDir == ""
	cmd, port, profile, err := launchChrome(ctx, cfg)
	if err != nil {
		return nil, err
	}

	wsURL, err := newTab(ctx, port)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	conn, err := dialConn(ctx, wsURL, logger)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	a := &ChromeAutomator{
		cfg:         cfg,
		cmd:         cmd,
		conn:        conn,
		profileDir:  profile,
		tempProfile: tempProfile,
		logger:      logger,
	}

	if _, err := conn.call(ctx, "Page.enable", nil); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.navigate(ctx, homeURL); err != nil {
		a.Close()
		return nil, fmt.Errorf("load landing page: %w", err)
	}
	logger.Info("browser ready", "devtools_port", port, "profile", profile, "headless", cfg.Headless)
	return a, nil
}

func (a *ChromeAutomator) OpenNewChat(ctx context.Context, model string) error {
	target := homeURL
	if model != "" {
		target = homeURL + "?model=" + url.QueryEscape(model)
	}
	if err := a.navigate(ctx, target); err != nil {
		return err
	}
	// The page is ready for input once the composer exists.
	return a.waitFor(ctx, fmt.Sprintf("document.getElementById(%q) !== null", promptTextareaID))
}

func (a *ChromeAutomator) SubmitPrompt(ctx context.Context, text string) (domain.ConversationID, error) {
	if err := a.focusComposer(ctx); err != nil {
		return "", err
	}
	if err := a.typeText(ctx, text); err != nil {
		return "", err
	}
	if err := a.clickSend(ctx); err != nil {
		return "", err
	}

	// The conversation handle appears as a URL transition to /c/<id>.
	for {
		href, err := a.evalString(ctx, "window.location.href")
		if err != nil {
			return "", err
		}
		if id, ok := ConversationIDFromURL(href); ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", domain.ErrSubmissionTimeout
		case <-time.After(domPollInterval):
		}
	}
}

func (a *ChromeAutomator) UIError(ctx context.Context) (string, error) {
	text, err := a.evalString(ctx, errorBlockJS)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Close tears down the socket and the browser, wiping only throwaway
// profiles.
func (a *ChromeAutomator) Close() error {
	var firstErr error
	if a.conn != nil {
		if err := a.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.cmd != nil && a.cmd.Process != nil {
		if err := a.cmd.Process.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
		_ = a.cmd.Wait()
	}
	if a.tempProfile && strings.Contains(a.profileDir, tempProfilePrefix) {
		_ = os.RemoveAll(a.profileDir)
	}
	return firstErr
}

var conversationRe = regexp.MustCompile(`/c/([0-9a-fA-F-]{36})(?:[/?#]|$)`)

// ConversationIDFromURL extracts the conversation handle from a chat URL.
func ConversationIDFromURL(href string) (domain.ConversationID, bool) {
	m := conversationRe.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return domain.ConversationID(m[1]), true
}

// —— protocol helpers ——

func (a *ChromeAutomator) navigate(ctx context.Context, target string) error {
	_, err := a.conn.call(ctx, "Page.navigate", map[string]any{"url": target})
	return err
}

// eval runs an expression in the page and returns its JSON value.
func (a *ChromeAutomator) evalString(ctx context.Context, expr string) (string, error) {
	res, err := a.conn.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	})
	if err != nil {
		return "", err
	}
	if exc := res.Get("exceptionDetails"); exc.Exists() {
		return "", fmt.Errorf("page script failed: %s", exc.Get("text").String())
	}
	return res.Get("result.value").String(), nil
}

func (a *ChromeAutomator) evalBool(ctx context.Context, expr string) (bool, error) {
	res, err := a.conn.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	})
	if err != nil {
		return false, err
	}
	return res.Get("result.value").Bool(), nil
}

// waitFor polls an expression until it is truthy or ctx ends.
func (a *ChromeAutomator) waitFor(ctx context.Context, expr string) error {
	for {
		ok, err := a.evalBool(ctx, expr)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s", domain.ErrSubmissionTimeout, expr)
		case <-time.After(domPollInterval):
		}
	}
}

func (a *ChromeAutomator) focusComposer(ctx context.Context) error {
	if err := a.waitFor(ctx, fmt.Sprintf("document.getElementById(%q) !== null", promptTextareaID)); err != nil {
		return err
	}
	_, err := a.evalString(ctx, fmt.Sprintf("document.getElementById(%q).focus()", promptTextareaID))
	return err
}

// typeText inserts the prompt according to the configured typing mode.
// paste and fast insert whole chunks; normal dispatches per rune with a
// human-like delay.
func (a *ChromeAutomator) typeText(ctx context.Context, text string) error {
	switch TypingMode(a.cfg.TypingMode) {
	case ModePaste, ModeFast:
		for start := 0; start < len(text); start += pasteChunkSize {
			end := min(start+pasteChunkSize, len(text))
			if err := a.insertText(ctx, text[start:end]); err != nil {
				return err
			}
		}
		return nil
	default:
		lo, hi := a.cfg.KeyDelayMin, a.cfg.KeyDelayMax
		if hi < lo {
			hi = lo
		}
		for _, r := range text {
			if err := a.insertText(ctx, string(r)); err != nil {
				return err
			}
			delay := lo
			if hi > lo {
				delay = lo + time.Duration(rand.Int63n(int64(hi-lo)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		return nil
	}
}

func (a *ChromeAutomator) insertText(ctx context.Context, chunk string) error {
	_, err := a.conn.call(ctx, "Input.insertText", map[string]any{"text": chunk})
	return err
}

func (a *ChromeAutomator) clickSend(ctx context.Context) error {
	clickJS := fmt.Sprintf(`(() => {
		const btn = document.getElementById(%q) || document.querySelector(%q);
		if (!btn) return false;
		btn.click();
		return true;
	})()`, submitButtonID, sendButtonSelector)

	return a.waitFor(ctx, clickJS)
}

// TypingMode is the typing strategy for prompt entry.
type TypingMode string

const (
	ModeNormal TypingMode = "normal"
	ModeFast   TypingMode = "fast"
	ModePaste  TypingMode = "paste"
)

// NormalizeTypingMode maps arbitrary config input to a valid mode.
func NormalizeTypingMode(raw string) TypingMode {
	switch TypingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeFast:
		return ModeFast
	case ModePaste:
		return ModePaste
	default:
		return ModeNormal
	}
}
