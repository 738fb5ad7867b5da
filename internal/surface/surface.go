// Package surface opens the authorization window for a linking attempt.
package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/browser"

	"ledger/internal/core"
	"ledger/internal/linking"
	"ledger/internal/log"
)

// URLPlaceholder is replaced with the authorization URL in command templates.
const URLPlaceholder = "{url}"

// Browser opens the URL in the system browser. The resulting window can't be
// observed, so only the signal or the deadline ends the attempt.
type Browser struct {
	open   func(string) error
	logger *log.Logger
}

var _ linking.Surface = (*Browser)(nil)

func NewBrowser(logger *log.Logger) *Browser {
	if logger == nil {
		logger = log.Discard()
	}
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Browser{open: browser.OpenURL, logger: logger.WithComponent(log.ComponentSurface)}
}

func (b *Browser) Open(_ context.Context, rawURL string) (linking.Window, error) {
	if err := b.open(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPopupBlocked, err)
	}
	b.logger.Info("Authorization page opened in browser")
	return &detachedWindow{}, nil
}

// detachedWindow stands for a tab we do not control.
type detachedWindow struct {
	mu     sync.Mutex
	closed bool
}

func (w *detachedWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *detachedWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Command runs a browser command per attempt, e.g.
// "chromium --app={url} --window-size=600,700". The process is the window:
// its exit means the user closed it.
type Command struct {
	argv   []string
	logger *log.Logger
}

var _ linking.Surface = (*Command)(nil)

func NewCommand(template string, logger *log.Logger) (*Command, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, errors.New("empty browser command")
	}
	if !strings.Contains(template, URLPlaceholder) {
		return nil, fmt.Errorf("browser command must contain %s", URLPlaceholder)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Command{argv: argv, logger: logger.WithComponent(log.ComponentSurface)}, nil
}

func (c *Command) Open(_ context.Context, rawURL string) (linking.Window, error) {
	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		args[i] = strings.ReplaceAll(a, URLPlaceholder, rawURL)
	}

	// Not bound to ctx: the window's lifetime is managed through Close.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPopupBlocked, err)
	}

	w := &processWindow{cmd: cmd, exited: make(chan struct{})}
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			c.logger.Debug("Authorization window exited with error", "pid", pid, log.FieldError, err)
		} else {
			c.logger.Debug("Authorization window exited", "pid", pid)
		}
		close(w.exited)
	}()
	c.logger.Info("Authorization window started", "command", args[0], "pid", pid)
	return w, nil
}

type processWindow struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

func (w *processWindow) Closed() bool {
	select {
	case <-w.exited:
		return true
	default:
		return false
	}
}

func (w *processWindow) Close() error {
	if w.Closed() {
		return nil
	}
	if err := w.cmd.Process.Kill(); err != nil && !w.Closed() {
		return fmt.Errorf("kill authorization window: %w", err)
	}
	<-w.exited
	return nil
}
