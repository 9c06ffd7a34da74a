// Package desktop provides notification sinks for the headless agent: alerts
// go to the structured log and, optionally, to the controlling terminal.
package desktop

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/notification"
)

// ---------------------------------------------------------------------------
// Bell
// ---------------------------------------------------------------------------

// Bell rings the terminal bell on Play and repeats every interval until Stop
type Bell struct {
	out      io.Writer
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewBell creates a bell writing to out. A zero interval rings once per Play.
func NewBell(out io.Writer, interval time.Duration) *Bell {
	return &Bell{out: out, interval: interval}
}

// Play rings immediately and starts repeating if not already ringing
func (b *Bell) Play(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := io.WriteString(b.out, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	if b.interval <= 0 || b.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	b.stop = stop
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.mu.Lock()
				_, _ = io.WriteString(b.out, "\a")
				b.mu.Unlock()
			}
		}
	}()
	return nil
}

// Stop silences the bell. Safe to call when not ringing.
func (b *Bell) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}

// Ringing reports whether the bell is repeating
func (b *Bell) Ringing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

// ---------------------------------------------------------------------------
// LogNotifier
// ---------------------------------------------------------------------------

// LogNotifier writes desktop notifications to the log
type LogNotifier struct {
	logger *zap.Logger
	allow  bool
}

// NewLogNotifier creates a notifier. allow is the answer given to the
// permission request.
func NewLogNotifier(logger *zap.Logger, allow bool) *LogNotifier {
	return &LogNotifier{logger: logger.Named("desktop"), allow: allow}
}

// RequestPermission returns the configured answer
func (n *LogNotifier) RequestPermission(context.Context) (bool, error) {
	return n.allow, nil
}

// Notify logs the alert
func (n *LogNotifier) Notify(_ context.Context, a notification.Alert) error {
	if !n.allow {
		return notification.ErrPermissionDenied
	}
	fields := []zap.Field{
		zap.String("title", a.Title),
		zap.String("body", a.Body),
		zap.Int("pending", a.Count),
	}
	if a.Request != nil {
		fields = append(fields, zap.Stringer("id", a.Request.ID), zap.String("cajero", a.Request.Cajero))
	}
	n.logger.Info("Transfer validation alert", fields...)
	return nil
}

// ---------------------------------------------------------------------------
// TerminalTitle
// ---------------------------------------------------------------------------

// TerminalTitle keeps the terminal window title as the pending badge. When
// out is nil only the in-memory title changes.
type TerminalTitle struct {
	out io.Writer

	mu    sync.Mutex
	title string
}

// NewTerminalTitle creates a title badge starting at title
func NewTerminalTitle(out io.Writer, title string) *TerminalTitle {
	return &TerminalTitle{out: out, title: title}
}

// Title returns the current title
func (t *TerminalTitle) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

// SetTitle updates the title and emits the OSC 0 sequence
func (t *TerminalTitle) SetTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
	if t.out != nil {
		_, _ = fmt.Fprintf(t.out, "\x1b]0;%s\x07", title)
	}
}

// ---------------------------------------------------------------------------
// LogPanel and LogBanner
// ---------------------------------------------------------------------------

// LogPanel tracks a collapsed/expanded flag and logs expansions
type LogPanel struct {
	logger *zap.Logger

	mu        sync.Mutex
	collapsed bool
}

// NewLogPanel creates a panel in the given state
func NewLogPanel(logger *zap.Logger, collapsed bool) *LogPanel {
	return &LogPanel{logger: logger.Named("panel"), collapsed: collapsed}
}

// Collapsed reports whether the panel is collapsed
func (p *LogPanel) Collapsed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collapsed
}

// Expand opens the panel
func (p *LogPanel) Expand() {
	p.mu.Lock()
	p.collapsed = false
	p.mu.Unlock()
	p.logger.Debug("Admin panel expanded")
}

// Collapse closes the panel
func (p *LogPanel) Collapse() {
	p.mu.Lock()
	p.collapsed = true
	p.mu.Unlock()
}

// LogBanner logs banner visibility changes
type LogBanner struct {
	logger *zap.Logger

	mu      sync.Mutex
	visible bool
}

// NewLogBanner creates a hidden banner
func NewLogBanner(logger *zap.Logger) *LogBanner {
	return &LogBanner{logger: logger.Named("banner")}
}

// Show displays the banner
func (b *LogBanner) Show(a notification.Alert) {
	b.mu.Lock()
	b.visible = true
	b.mu.Unlock()
	b.logger.Debug("Banner shown", zap.String("title", a.Title), zap.String("body", a.Body))
}

// Hide removes the banner
func (b *LogBanner) Hide() {
	b.mu.Lock()
	b.visible = false
	b.mu.Unlock()
	b.logger.Debug("Banner hidden")
}

// Visible reports whether the banner is shown
func (b *LogBanner) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Sinks assembles the headless sink set. bell and title output are optional.
func Sinks(logger *zap.Logger, allowDesktop bool, bellOut io.Writer, titleOut io.Writer, title string) notification.Sinks {
	s := notification.Sinks{
		Desktop: NewLogNotifier(logger, allowDesktop),
		Title:   NewTerminalTitle(titleOut, title),
		Panel:   NewLogPanel(logger, true),
		Banner:  NewLogBanner(logger),
	}
	if bellOut != nil {
		s.Audio = NewBell(bellOut, 3*time.Second)
	}
	return s
}
