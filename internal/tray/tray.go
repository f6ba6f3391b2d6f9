// Package tray provides the menu bar controls for mudra.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/lifecycle"
)

// Tray is the system tray menu. Callbacks run outside the tray lock.
type Tray struct {
	mu         sync.RWMutex
	onToggle   func(enabled bool) error
	onMode     func(mode lifecycle.Mode) error
	onSettings func()
	onQuit     func()
	enabled    bool
	mode       lifecycle.Mode
	last       string

	menuToggle *systray.MenuItem
	menuMode   *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a tray reflecting the given initial state.
func New(enabled bool, mode lifecycle.Mode) *Tray {
	return &Tray{enabled: enabled, mode: mode}
}

// OnToggle sets the callback for the enable/disable item.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnMode sets the callback for the sync/async item.
func (t *Tray) OnMode(fn func(mode lifecycle.Mode) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMode = fn
}

// OnSettings sets the callback for "Open Dashboard".
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run shows the tray and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra gesture control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture recognition")
	t.menuMode = systray.AddMenuItem(modeTitle(t.mode), "Switch between verified and optimistic execution")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem(lastTitle(t.last), "Last event")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.toggle()
			case <-t.menuMode.ClickedCh:
				t.switchMode()
			case <-menuSettings.ClickedCh:
				t.mu.RLock()
				fn := t.onSettings
				t.mu.RUnlock()
				if fn != nil {
					fn()
				}
			case <-menuQuit.ClickedCh:
				t.mu.RLock()
				fn := t.onQuit
				t.mu.RUnlock()
				if fn != nil {
					fn()
				}
				systray.Quit()
				return
			}
		}
	}()
}

// toggle flips the enabled state; a failing callback leaves it unchanged.
func (t *Tray) toggle() {
	t.mu.RLock()
	next := !t.enabled
	fn := t.onToggle
	t.mu.RUnlock()

	if fn != nil {
		if err := fn(next); err != nil {
			return
		}
	}
	t.SetEnabled(next)
}

func (t *Tray) switchMode() {
	t.mu.RLock()
	next := lifecycle.ModeAsync
	if t.mode == lifecycle.ModeAsync {
		next = lifecycle.ModeSync
	}
	fn := t.onMode
	t.mu.RUnlock()

	if fn != nil {
		if err := fn(next); err != nil {
			return
		}
	}
	t.SetMode(next)
}

// SetEnabled updates the displayed enabled state.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetMode updates the displayed mode.
func (t *Tray) SetMode(mode lifecycle.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	if t.menuMode != nil {
		t.menuMode.SetTitle(modeTitle(mode))
	}
}

// SetLastEvent updates the last event line.
func (t *Tray) SetLastEvent(summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = summary
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(summary))
	}
}

// IsEnabled returns the displayed enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Mode returns the displayed mode.
func (t *Tray) Mode() lifecycle.Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}

// LastEvent returns the last event line.
func (t *Tray) LastEvent() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// WriteRecord shows each terminal event in the menu.
func (t *Tray) WriteRecord(_ context.Context, rec eventlog.Record) error {
	in := rec.ApprovedIntent
	if in == "" {
		in = rec.ProposedIntent
	}
	t.SetLastEvent(fmt.Sprintf("%s (%s)", in, rec.Outcome))
	return nil
}

func (t *Tray) WriteAnnotation(context.Context, eventlog.Annotation) error { return nil }

func (t *Tray) Close() error { return nil }

var _ eventlog.Sink = (*Tray)(nil)

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func modeTitle(mode lifecycle.Mode) string {
	if mode == lifecycle.ModeAsync {
		return "Mode: optimistic"
	}
	return "Mode: verified"
}

func lastTitle(summary string) string {
	if summary == "" {
		return "Last: none"
	}
	return "Last: " + summary
}
