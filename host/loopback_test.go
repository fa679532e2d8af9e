package host

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/dom"
	"github.com/chrisuehlinger/hostbridge/native"
)

func setup(t *testing.T) (*Loopback, *bridge.Context) {
	t.Helper()
	h := NewLoopback()
	t.Cleanup(h.Close)
	pool := bridge.NewPool()
	t.Cleanup(pool.Close)
	return h, pool.NewContext(bridge.WithCommandSink(h))
}

func newTarget(t *testing.T, ctx *bridge.Context) *dom.EventTarget {
	t.Helper()
	et, err := dom.NewEventTarget(ctx, dom.WithTypeName("DIV"))
	require.NoError(t, err)
	ctx.FlushCommands()
	return et
}

func TestCreateInstallsInvoker(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	assert.Equal(t, "DIV", h.TypeName(et.ID()))
	assert.Same(t, et.Binding().Native(), h.Object(et.ID()))
	assert.Equal(t, bridge.HostInvoker(h), et.Binding().Native().Invoker())
}

func TestPropertyRoundTrip(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)
	b := et.Binding()

	v, err := b.GetBindingProperty("width")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	require.NoError(t, b.SetBindingProperty("width", native.Int64(320)))
	require.NoError(t, b.SetBindingProperty("title", native.String("hello")))

	v, err = b.GetBindingProperty("width")
	require.NoError(t, err)
	assert.Equal(t, int64(320), v.Int())

	names, err := b.GetAllBindingPropertyNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "width"}, names)

	stored, ok := h.Property(et.ID(), "title")
	require.True(t, ok)
	assert.Equal(t, "hello", stored.Text())
}

func TestNamedMethods(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	h.HandleMethod("measure", func(id int64, args []native.Value) (native.Value, error) {
		return native.Int64(id + args[0].Int()), nil
	})

	v, err := et.Binding().InvokeBindingMethod("measure", []native.Value{native.Int64(10)})
	require.NoError(t, err)
	assert.Equal(t, et.ID()+10, v.Int())

	_, err = et.Binding().InvokeBindingMethod("missing", nil)
	require.Error(t, err)
	assert.True(t, bridge.IsType(err, bridge.HostError))
}

func TestAnonymousFunction(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	fn := h.RegisterFunc(func(args []native.Value) (native.Value, error) {
		return native.Int64(args[0].Int() * 2), nil
	})
	require.Equal(t, native.TagFunction, fn.Tag)

	v, err := et.Binding().AnonymousFunctionCall(fn.FunctionID(), []native.Value{native.Int64(21)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())

	_, err = et.Binding().AnonymousFunctionCall(999, nil)
	assert.Error(t, err)
}

func settle(t *testing.T, ctx *bridge.Context, f *bridge.Future) {
	t.Helper()
	require.Eventually(t, func() bool {
		ctx.RunPending()
		return f.State() != bridge.FuturePending
	}, time.Second, time.Millisecond)
}

func TestAsyncFunctionResolves(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	fn := h.RegisterAsync(func(_ context.Context, args []native.Value) (native.Value, error) {
		return native.String("done:" + args[0].Text()), nil
	})
	f, err := et.Binding().InvokeAsync(fn.FunctionID(), []native.Value{native.String("a")})
	require.NoError(t, err)

	settle(t, ctx, f)
	assert.Equal(t, bridge.FutureFulfilled, f.State())
	assert.Equal(t, "done:a", f.Value().Text())
	assert.Zero(t, ctx.PendingAsync())
}

func TestAsyncFunctionRejects(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	fn := h.RegisterAsync(func(context.Context, []native.Value) (native.Value, error) {
		return native.Null(), errors.New("no network")
	})
	f, err := et.Binding().InvokeAsync(fn.FunctionID(), nil)
	require.NoError(t, err)

	settle(t, ctx, f)
	assert.Equal(t, bridge.FutureRejected, f.State())
	assert.True(t, bridge.IsType(f.Err(), bridge.TypeError))
	assert.Contains(t, f.Err().Error(), "no network")
}

func TestUnknownAsyncFunction(t *testing.T) {
	_, ctx := setup(t)
	et := newTarget(t, ctx)

	f, err := et.Binding().InvokeAsync(404, nil)
	assert.Nil(t, f)
	require.Error(t, err)
	assert.Zero(t, ctx.PendingAsync())
}

func TestInterestAndDispatch(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	var got []string
	require.NoError(t, et.AddEventListener("click", dom.HandleFunc(func(ev *dom.Event) error {
		got = append(got, ev.Type)
		assert.True(t, ev.IsTrusted)
		return nil
	})))
	ctx.FlushCommands()

	assert.Equal(t, []string{"click"}, h.Interest(et.ID()))
	assert.Equal(t, []int64{et.ID()}, h.Interested("click"))
	assert.Empty(t, h.Interested("load"))

	require.True(t, h.Dispatch(et.ID(), bridge.NativeEvent{Type: "click"}))
	ctx.RunPending()
	assert.Equal(t, []string{"click"}, got)

	assert.False(t, h.Dispatch(12345, bridge.NativeEvent{Type: "click"}))
	runtime.KeepAlive(et)
}

func TestDisposeRecorded(t *testing.T) {
	h, ctx := setup(t)
	et := newTarget(t, ctx)

	var seen []command.Op
	h.observers = append(h.observers, func(c command.Command) { seen = append(seen, c.Op) })

	et.Dispose()
	require.Eventually(t, func() bool {
		ctx.FlushCommands()
		return len(h.Disposed()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, []int64{et.ID()}, h.Disposed())
	assert.Nil(t, h.Object(et.ID()))
	assert.Equal(t, []command.Op{command.OpDisposeEventTarget}, seen)
}

func TestAdopt(t *testing.T) {
	h, ctx := setup(t)
	body, err := dom.NewEventTarget(ctx, dom.WithID(bridge.BodyTargetID))
	require.NoError(t, err)

	h.Adopt(body.Binding().Native(), "BODY")
	h.SetProperty(bridge.BodyTargetID, "scrollTop", native.Float64(12.5))

	v, err := body.Binding().GetBindingProperty("scrollTop")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v.Float(), 0)
	assert.Equal(t, "BODY", h.TypeName(bridge.BodyTargetID))
}
