package dom

import (
	"encoding/json"
	"weak"

	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

// Option configures a new EventTarget.
type Option func(*targetConfig)

type targetConfig struct {
	id           int64
	hasID        bool
	alwaysNotify bool
	typeName     string
}

// WithID reconstructs a host-originated target under a host-assigned id. No
// create command is sent for it.
func WithID(id int64) Option {
	return func(c *targetConfig) {
		c.id = id
		c.hasID = true
	}
}

// WithAlwaysNotify sends an interest command on every listener addition,
// not only the first per kind. The body target always behaves this way.
func WithAlwaysNotify() Option {
	return func(c *targetConfig) { c.alwaysNotify = true }
}

// WithTypeName sets the type name carried by the create command.
func WithTypeName(name string) Option {
	return func(c *targetConfig) { c.typeName = name }
}

// EventTarget is an addressable object that holds listeners and receives
// dispatched events. All methods must be called on the context's script
// goroutine.
type EventTarget struct {
	ctx     *bridge.Context
	binding *bridge.BindingObject
	id      int64
	logger  *zap.Logger

	reg          registry
	alwaysNotify bool
	parent       *EventTarget

	hostDispatch func(ev *Event)
	releaseHooks []func()
	disposed     bool
}

// NewEventTarget creates a target in ctx and its native shadow.
func NewEventTarget(ctx *bridge.Context, opts ...Option) (*EventTarget, error) {
	if ctx == nil || !ctx.IsValid() {
		return nil, bridge.ErrContextDisposed
	}
	cfg := targetConfig{typeName: "EventTarget"}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := cfg.id
	if !cfg.hasID {
		id = ctx.NextTargetID()
	}

	t := &EventTarget{
		ctx:          ctx,
		id:           id,
		logger:       ctx.Logger().With(zap.Int64("target", id)),
		reg:          newRegistry(),
		alwaysNotify: cfg.alwaysNotify || id == bridge.BodyTargetID,
	}
	b, err := bridge.NewBindingObject(ctx, id, t)
	if err != nil {
		return nil, err
	}
	t.binding = b

	if !cfg.hasID {
		ctx.Commands().Register(command.Command{
			TargetID: id,
			Op:       command.OpCreateEventTarget,
			Args:     []string{cfg.typeName},
			Native:   weak.Make(b.Native()),
		})
	}
	return t, nil
}

// ID returns the target id.
func (t *EventTarget) ID() int64 { return t.id }

// Context returns the owning context.
func (t *EventTarget) Context() *bridge.Context { return t.ctx }

// Binding returns the host invocation side of the target.
func (t *EventTarget) Binding() *bridge.BindingObject { return t.binding }

// Disposed reports whether Dispose has run.
func (t *EventTarget) Disposed() bool { return t.disposed }

// Parent returns the structural parent, or nil.
func (t *EventTarget) Parent() *EventTarget { return t.parent }

// SetParent sets the structural parent used for propagation.
func (t *EventTarget) SetParent(p *EventTarget) { t.parent = p }

func (t *EventTarget) check(op, kind string, h *Handle) error {
	if t.disposed {
		return bridge.ErrTargetDisposed
	}
	if kind == "" {
		return bridge.ErrInvalidArgument(op, "event type must be a non-empty string.")
	}
	if h == nil {
		return bridge.ErrInvalidArgument(op, "parameter 2 is not a callback.")
	}
	return nil
}

// AddEventListener appends h under kind. Duplicates are kept.
func (t *EventTarget) AddEventListener(kind string, h *Handle) error {
	if err := t.check("addEventListener", kind, h); err != nil {
		return err
	}
	if first := t.reg.add(kind, h); first || t.alwaysNotify {
		t.notifyInterest(kind)
	}
	return nil
}

// RemoveEventListener removes every entry for kind whose handle is h.
func (t *EventTarget) RemoveEventListener(kind string, h *Handle) error {
	if err := t.check("removeEventListener", kind, h); err != nil {
		return err
	}
	t.reg.remove(kind, h)
	return nil
}

// SetEventHandler installs h as the only listener for kind, releasing every
// existing one. A nil handle clears the kind.
func (t *EventTarget) SetEventHandler(kind string, h *Handle) error {
	if t.disposed {
		return bridge.ErrTargetDisposed
	}
	if kind == "" {
		return bridge.ErrInvalidArgument("setEventHandler", "event type must be a non-empty string.")
	}
	if h == nil {
		for _, old := range t.reg.handles(kind) {
			t.reg.remove(kind, old)
		}
		return nil
	}
	t.reg.replace(kind, h)
	t.notifyInterest(kind)
	return nil
}

// EventHandler returns the first listener for kind, or nil.
func (t *EventTarget) EventHandler(kind string) *Handle {
	return t.reg.first(kind)
}

// Listeners returns the handles registered for kind in insertion order.
func (t *EventTarget) Listeners(kind string) []*Handle {
	return t.reg.handles(kind)
}

// EventKinds returns the kinds with registry entries, sorted.
func (t *EventTarget) EventKinds() []string {
	return t.reg.kinds()
}

// ClearEventListeners releases every listener. The target stays usable.
func (t *EventTarget) ClearEventListeners() {
	t.reg.clear()
}

func (t *EventTarget) notifyInterest(kind string) {
	t.ctx.Commands().Register(command.Command{
		TargetID: t.id,
		Op:       command.OpAddEvent,
		Args:     []string{kind},
	})
}

// AddReleaseHook registers fn to run when the target is disposed.
func (t *EventTarget) AddReleaseHook(fn func()) {
	if fn != nil {
		t.releaseHooks = append(t.releaseHooks, fn)
	}
}

// SetHostDispatcher overrides how host-originated events enter dispatch. The
// script bindings use it to route through the script object's dispatchEvent.
func (t *EventTarget) SetHostDispatcher(fn func(ev *Event)) {
	t.hostDispatch = fn
}

// DispatchFromHost dispatches a host-originated occurrence.
func (t *EventTarget) DispatchFromHost(ne bridge.NativeEvent) {
	if t.disposed {
		return
	}
	ev := EventFromNative(ne)
	if t.hostDispatch != nil {
		t.hostDispatch(ev)
		return
	}
	if _, err := t.DispatchEvent(ev); err != nil {
		t.ctx.ReportError(err)
	}
}

// HandleCallFromHost answers generic host calls: dispatchEvent takes a kind
// string or a JSON event description, targetId returns the id.
func (t *EventTarget) HandleCallFromHost(method native.Value, args []native.Value) (native.Value, error) {
	m := native.ParseMethod(method)
	switch m.Name {
	case "targetId":
		return native.Int64(t.id), nil
	case "dispatchEvent":
		if len(args) != 1 {
			return native.Null(), bridge.ErrInvalidArgument("dispatchEvent", "1 argument required.")
		}
		var ne bridge.NativeEvent
		switch args[0].Tag {
		case native.TagString:
			ne.Type = args[0].Text()
		case native.TagJSON:
			if err := json.Unmarshal([]byte(args[0].Text()), &ne); err != nil {
				return native.Null(), bridge.ErrInvalidArgument("dispatchEvent", err.Error())
			}
		default:
			return native.Null(), bridge.ErrInvalidArgument("dispatchEvent", "event must be a type string or a JSON description.")
		}
		ev := EventFromNative(ne)
		ok, err := t.DispatchEvent(ev)
		if err != nil {
			return native.Null(), err
		}
		return native.Bool(ok), nil
	}
	return native.Null(), bridge.ErrInvalidArgument(m.String(), "unknown host call.")
}

// Dispose releases every listener and cached handle, destroys the native
// shadow, and queues the host disposal notification. It is idempotent.
func (t *EventTarget) Dispose() {
	if t.disposed {
		return
	}
	t.disposed = true
	t.reg.clear()

	hooks := t.releaseHooks
	t.releaseHooks = nil
	for _, fn := range hooks {
		fn()
	}
	t.hostDispatch = nil
	t.parent = nil

	t.binding.ReleaseNative()
	bridge.ScheduleDisposal(t.ctx.Pool(), t.ctx.ID(), t.id)
	t.logger.Debug("target disposed")
}
