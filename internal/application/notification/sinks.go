package notification

import (
	"context"
	"errors"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// ErrPermissionDenied is returned by a DesktopNotifier that may not show
// notifications
var ErrPermissionDenied = errors.New("desktop notification permission denied")

// Alert is the content of a new-request notification
type Alert struct {
	Title   string
	Body    string
	Count   int
	Request *validation.ValidationRequest
}

// AudioPlayer plays the alert cue until stopped
type AudioPlayer interface {
	Play(ctx context.Context) error
	Stop()
}

// DesktopNotifier shows OS-level notifications. RequestPermission is called
// at most once per coordinator.
type DesktopNotifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	Notify(ctx context.Context, alert Alert) error
}

// TitleBadge is the persistent pending-count indicator
type TitleBadge interface {
	Title() string
	SetTitle(title string)
}

// Panel is the collapsible admin panel
type Panel interface {
	Collapsed() bool
	Expand()
}

// Banner is the transient new-request banner
type Banner interface {
	Show(alert Alert)
	Hide()
}

// Sinks groups the presentation hooks. Nil members are skipped. All sinks
// except Desktop are called from the store's notification path and must not
// block; Desktop runs on its own goroutine.
type Sinks struct {
	Audio   AudioPlayer
	Desktop DesktopNotifier
	Title   TitleBadge
	Panel   Panel
	Banner  Banner
}
