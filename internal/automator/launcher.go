package automator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const tempProfilePrefix = "chatrelay-profile-"

// chromeCandidates are tried in order when CHROME_BINARY is not set.
func chromeCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	}
	return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
}

func resolveBinary(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	for _, candidate := range chromeCandidates() {
		if filepath.IsAbs(candidate) {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome binary found; set CHROME_BINARY")
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// launchChrome starts a debugging-enabled browser and returns the running
// command, the devtools port, and the resolved profile directory.
func launchChrome(ctx context.Context, cfg Config) (*exec.Cmd, int, string, error) {
	binary, err := resolveBinary(cfg.Binary)
	if err != nil {
		return nil, 0, "", err
	}

	port := cfg.DebugPort
	if port == 0 {
		port, err = freePort()
		if err != nil {
			return nil, 0, "", fmt.Errorf("allocate debug port: %w", err)
		}
	}

	profile := cfg.ProfileDir
	if profile == "" {
		profile, err = os.MkdirTemp("", tempProfilePrefix)
		if err != nil {
			return nil, 0, "", fmt.Errorf("create temp profile: %w", err)
		}
	} else if profile, err = filepath.Abs(profile); err != nil {
		return nil, 0, "", err
	}
	if err := os.MkdirAll(profile, 0o700); err != nil {
		return nil, 0, "", fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + profile,
		"--no-first-run",
		"--no-default-browser-check",
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
	}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, 0, "", fmt.Errorf("start chrome: %w", err)
	}

	if err := waitForDevtools(ctx, port); err != nil {
		_ = cmd.Process.Kill()
		return nil, 0, "", err
	}
	return cmd, port, profile, nil
}

// waitForDevtools polls the debugging endpoint until it answers.
func waitForDevtools(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	deadline := time.Now().Add(30 * time.Second)
	for {
		if time.Now().After(deadline) {
			return errors.New("devtools endpoint did not come up within 30s")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// newTab opens a fresh page target and returns its websocket debugger URL.
// Newer Chrome requires PUT for /json/new; older builds only accept GET.
func newTab(ctx context.Context, port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/new?about:blank", port)
	for _, method := range []string{http.MethodPut, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("open devtools tab: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", err
		}
		if resp.StatusCode == http.StatusMethodNotAllowed {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("open devtools tab: status %d", resp.StatusCode)
		}
		wsURL := gjson.GetBytes(body, "webSocketDebuggerUrl").String()
		if wsURL == "" {
			return "", errors.New("devtools tab response missing webSocketDebuggerUrl")
		}
		return wsURL, nil
	}
	return "", errors.New("devtools /json/new rejected both PUT and GET")
}
