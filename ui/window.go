// Package ui provides a small desktop panel for driving a local host: it
// shows the targets that listen for an event kind and fires that kind at
// them on request.
package ui

import (
	"context"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Window hosts a Panel in its own application window.
type Window struct {
	app    fyne.App
	window fyne.Window
	panel  *Panel
}

// NewWindow creates the window on app. Nothing is shown until Run.
func NewWindow(app fyne.App, title string, panel *Panel) *Window {
	w := &Window{
		app:    app,
		window: app.NewWindow(title),
		panel:  panel,
	}
	w.window.Resize(fyne.NewSize(360, 480))
	w.window.SetContent(panel.Content())
	w.setupKeyboardShortcuts()
	return w
}

func (w *Window) setupKeyboardShortcuts() {
	// Ctrl+R: Refresh
	w.window.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyne.KeyR,
		Modifier: fyne.KeyModifierControl,
	}, func(_ fyne.Shortcut) {
		w.panel.Refresh()
	})
}

// Window returns the underlying fyne window.
func (w *Window) Window() fyne.Window { return w.window }

// Run shows the window, refreshing the panel every interval until ctx ends
// or the window closes. It blocks on the fyne event loop.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-closed:
				return
			case <-ctx.Done():
				fyne.Do(w.app.Quit)
				return
			case <-t.C:
				fyne.Do(w.panel.Refresh)
			}
		}
	}()
	w.panel.Refresh()
	w.window.ShowAndRun()
}
