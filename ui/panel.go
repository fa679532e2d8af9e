package ui

import (
	"fmt"
	"slices"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
)

// Source is the host state a panel shows and drives.
type Source interface {
	Interested(kind string) []int64
	TypeName(id int64) string
	Dispatch(id int64, ev bridge.NativeEvent) bool
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithKind sets the event kind the panel offers. The default is "click".
func WithKind(kind string) PanelOption {
	return func(p *Panel) {
		if kind != "" {
			p.kind = kind
		}
	}
}

// WithPanelLogger sets the panel logger.
func WithPanelLogger(l *zap.Logger) PanelOption {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// Panel lists every target that asked for one event kind and sends that
// kind to a target when its button is tapped.
type Panel struct {
	src    Source
	kind   string
	logger *zap.Logger

	list   *fyne.Container
	status *widget.Label
	root   *fyne.Container

	mu      sync.Mutex
	ids     []int64
	buttons map[int64]*widget.Button
	sent    int
}

// NewPanel builds a panel over src. Call Refresh to populate it.
func NewPanel(src Source, opts ...PanelOption) *Panel {
	p := &Panel{
		src:     src,
		kind:    "click",
		logger:  zap.NewNop(),
		buttons: make(map[int64]*widget.Button),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("ui")

	p.list = container.NewVBox()
	p.status = widget.NewLabel("")
	refresh := widget.NewButton("Refresh", p.Refresh)
	p.root = container.NewBorder(
		container.NewHBox(refresh, p.status),
		nil, nil, nil,
		container.NewVScroll(p.list),
	)
	p.updateStatus()
	return p
}

// Content returns the panel's root object.
func (p *Panel) Content() fyne.CanvasObject { return p.root }

// Refresh rebuilds the button list from the host's current interest.
func (p *Panel) Refresh() {
	ids := p.src.Interested(p.kind)
	slices.Sort(ids)

	p.mu.Lock()
	if slices.Equal(ids, p.ids) {
		p.mu.Unlock()
		return
	}
	p.ids = ids
	buttons := make(map[int64]*widget.Button, len(ids))
	objects := make([]fyne.CanvasObject, 0, len(ids))
	for _, id := range ids {
		btn, ok := p.buttons[id]
		if !ok {
			btn = widget.NewButton(p.label(id), func() { p.tap(id) })
		}
		buttons[id] = btn
		objects = append(objects, btn)
	}
	p.buttons = buttons
	p.mu.Unlock()

	p.list.Objects = objects
	p.list.Refresh()
	p.updateStatus()
}

// Button returns the button for target id, or nil.
func (p *Panel) Button(id int64) *widget.Button {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttons[id]
}

// Status returns the status line text.
func (p *Panel) Status() string { return p.status.Text }

func (p *Panel) label(id int64) string {
	name := p.src.TypeName(id)
	if name == "" {
		name = "target"
	}
	return fmt.Sprintf("%s #%d", name, id)
}

func (p *Panel) tap(id int64) {
	if !p.src.Dispatch(id, bridge.NativeEvent{Type: p.kind}) {
		p.logger.Debug("target gone", zap.Int64("target", id))
		p.Refresh()
		return
	}
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
	p.updateStatus()
}

func (p *Panel) updateStatus() {
	p.mu.Lock()
	text := fmt.Sprintf("%d %s targets, %d sent", len(p.ids), p.kind, p.sent)
	p.mu.Unlock()
	p.status.SetText(text)
}
