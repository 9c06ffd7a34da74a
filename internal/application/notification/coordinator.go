package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

const (
	permissionTimeout = 10 * time.Second
	desktopQueueSize  = 16
)

// Config holds coordinator settings
type Config struct {
	BannerDuration   time.Duration
	PanelExpandDelay time.Duration
	DesktopEnabled   bool
	// Locale selects amount formatting, e.g. "es-CL"
	Locale string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BannerDuration:   5 * time.Second,
		PanelExpandDelay: 500 * time.Millisecond,
		DesktopEnabled:   true,
		Locale:           "es-CL",
	}
}

// PermissionState is the desktop-notification permission as last observed
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// State is a point-in-time view of the coordinator
type State struct {
	Count         int             `json:"count"`
	Title         string          `json:"title"`
	BannerVisible bool            `json:"banner_visible"`
	Permission    PermissionState `json:"permission"`
	Alerts        uint64          `json:"alerts"`
}

// Coordinator turns pending-count transitions into user-facing signals:
// audio and desktop alerts on increases, a persistent title badge, a
// delayed panel expand and a self-hiding banner.
type Coordinator struct {
	cfg     Config
	sinks   Sinks
	printer *message.Printer
	logger  *zap.Logger

	mu            sync.Mutex
	originalTitle string
	count         int
	permission    PermissionState
	bannerVisible bool
	bannerTimer   *time.Timer
	bannerGen     uint64
	panelTimer    *time.Timer
	alerts        uint64
	closed        bool

	// desktop delivery runs on its own goroutine so a permission prompt
	// never holds up store delivery
	desktopQ    chan Alert
	desktopDone chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewCoordinator creates a coordinator. The current title is remembered
// and restored when the count returns to zero and on Close.
func NewCoordinator(cfg Config, sinks Sinks, logger *zap.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.BannerDuration <= 0 {
		cfg.BannerDuration = def.BannerDuration
	}
	if cfg.PanelExpandDelay < 0 {
		cfg.PanelExpandDelay = def.PanelExpandDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		logger.Warn("unknown notification locale, using es-CL", zap.String("locale", cfg.Locale))
		tag = language.MustParse(def.Locale)
	}

	c := &Coordinator{
		cfg:        cfg,
		sinks:      sinks,
		printer:    message.NewPrinter(tag),
		logger:     logger.Named("notification"),
		permission: PermissionUnknown,
	}
	if sinks.Title != nil {
		c.originalTitle = sinks.Title.Title()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	if cfg.DesktopEnabled && sinks.Desktop != nil {
		c.desktopQ = make(chan Alert, desktopQueueSize)
		c.desktopDone = make(chan struct{})
		go c.desktopLoop()
	}
	return c
}

// OnChange is a store listener. It reacts only to count transitions; changes
// that keep the count steady touch nothing. The audio cue is driven after
// mu is released and desktop notifications are queued.
func (c *Coordinator) OnChange(cs validation.ChangeSet) {
	play, stop := c.transition(cs)
	if c.sinks.Audio == nil {
		return
	}
	switch {
	case play:
		if err := c.sinks.Audio.Play(c.ctx); err != nil {
			c.logger.Debug("audio cue failed", zap.Error(err))
		}
	case stop:
		c.sinks.Audio.Stop()
	}
}

func (c *Coordinator) transition(cs validation.ChangeSet) (play, stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}

	prev := c.count
	c.count = cs.Count
	if cs.Count == prev {
		return false, false
	}

	c.applyTitle()

	switch {
	case cs.Count > prev:
		c.alert(cs)
		return true, false
	case cs.Count == 0:
		return false, true
	}
	return false, false
}

// State returns the coordinator's current view
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Count:         c.count,
		BannerVisible: c.bannerVisible,
		Permission:    c.permission,
		Alerts:        c.alerts,
		Title:         c.originalTitle,
	}
	if c.sinks.Title != nil {
		st.Title = c.sinks.Title.Title()
	}
	return st
}

// Close cancels pending timers, stops audio and restores the original title
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	stopTimer(&c.bannerTimer)
	stopTimer(&c.panelTimer)
	c.cancel()
	if c.desktopQ != nil {
		close(c.desktopQ)
	}
	if c.sinks.Audio != nil {
		c.sinks.Audio.Stop()
	}
	if c.sinks.Title != nil {
		c.sinks.Title.SetTitle(c.originalTitle)
	}
	c.mu.Unlock()

	if c.desktopDone != nil {
		<-c.desktopDone
	}
}

// FormatAmount renders an amount with the configured locale's grouping
func (c *Coordinator) FormatAmount(amount decimal.Decimal) string {
	return "$" + c.printer.Sprint(number.Decimal(amount.InexactFloat64(), number.MaxFractionDigits(2)))
}

// applyTitle must be called with mu held
func (c *Coordinator) applyTitle() {
	if c.sinks.Title == nil {
		return
	}
	if c.count == 0 {
		c.sinks.Title.SetTitle(c.originalTitle)
		return
	}
	c.sinks.Title.SetTitle(fmt.Sprintf("(%d) %s", c.count, c.originalTitle))
}

// alert must be called with mu held
func (c *Coordinator) alert(cs validation.ChangeSet) {
	c.alerts++
	a := c.buildAlert(cs)

	if c.desktopQ != nil {
		select {
		case c.desktopQ <- a:
		default:
			c.logger.Warn("desktop notification queue full, dropping alert")
		}
	}

	if c.sinks.Banner != nil {
		c.sinks.Banner.Show(a)
		c.bannerVisible = true
		stopTimer(&c.bannerTimer)
		c.bannerGen++
		gen := c.bannerGen
		c.bannerTimer = time.AfterFunc(c.cfg.BannerDuration, func() { c.hideBanner(gen) })
	}

	if c.sinks.Panel != nil && c.panelTimer == nil {
		c.panelTimer = time.AfterFunc(c.cfg.PanelExpandDelay, c.expandPanel)
	}
}

func (c *Coordinator) desktopLoop() {
	defer close(c.desktopDone)
	for a := range c.desktopQ {
		c.notifyDesktop(a)
	}
}

// notifyDesktop runs on the desktop goroutine only; mu is taken just to
// publish the permission state.
func (c *Coordinator) notifyDesktop(a Alert) {
	if c.ctx.Err() != nil {
		return
	}
	perm := c.permissionState()
	if perm == PermissionUnknown {
		pctx, cancel := context.WithTimeout(c.ctx, permissionTimeout)
		granted, err := c.sinks.Desktop.RequestPermission(pctx)
		cancel()
		perm = PermissionDenied
		if err == nil && granted {
			perm = PermissionGranted
		}
		c.setPermission(perm)
		c.logger.Info("desktop notification permission resolved",
			zap.String("permission", string(perm)))
	}
	if perm != PermissionGranted {
		return
	}
	if err := c.sinks.Desktop.Notify(c.ctx, a); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.setPermission(PermissionDenied)
		}
		c.logger.Debug("desktop notification failed", zap.Error(err))
	}
}

func (c *Coordinator) permissionState() PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

func (c *Coordinator) setPermission(p PermissionState) {
	c.mu.Lock()
	c.permission = p
	c.mu.Unlock()
}

func (c *Coordinator) buildAlert(cs validation.ChangeSet) Alert {
	a := Alert{Title: "Nueva transferencia pendiente", Count: cs.Count}
	added := cs.Added()
	if len(added) == 0 {
		a.Body = fmt.Sprintf("%d transferencias esperando validación", cs.Count)
		return a
	}

	req := added[len(added)-1]
	a.Request = &req
	cliente := strings.TrimSpace(req.Cliente)
	if cliente == "" {
		cliente = "Cliente no especificado"
	}
	a.Body = fmt.Sprintf("%s - %s", cliente, c.FormatAmount(req.Monto))
	if len(added) > 1 {
		a.Title = fmt.Sprintf("%d transferencias nuevas", len(added))
	}
	return a
}

func (c *Coordinator) hideBanner(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.bannerGen {
		return
	}
	c.bannerTimer = nil
	if c.closed || !c.bannerVisible {
		return
	}
	c.bannerVisible = false
	c.sinks.Banner.Hide()
}

func (c *Coordinator) expandPanel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panelTimer = nil
	if c.closed || c.count == 0 {
		return
	}
	if c.sinks.Panel.Collapsed() {
		c.sinks.Panel.Expand()
	}
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
