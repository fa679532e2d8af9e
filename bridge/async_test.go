package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/hostbridge/native"
)

// capturedCall holds the protocol arguments the host received.
type capturedCall struct {
	fn        int64
	contextID int64
	handle    any
	complete  AsyncCompleter
	rest      []native.Value
}

func startAsync(t *testing.T, ctx *Context, b *BindingObject, inv *mockInvoker, args ...native.Value) (*Future, *capturedCall) {
	t.Helper()
	got := &capturedCall{}
	inv.On("InvokeFromNative", b.Native(), native.OpAsyncAnonymousFunction.Value(), mock.Anything).
		Run(func(a mock.Arguments) {
			full := a.Get(2).([]native.Value)
			require.GreaterOrEqual(t, len(full), 4)
			got.fn = full[0].Int()
			got.contextID = full[1].Int()
			got.handle = full[2].Ptr()
			got.complete = full[3].Ptr().(AsyncCompleter)
			got.rest = full[4:]
		}).
		Return(native.Null(), nil).Once()

	f, err := b.InvokeAsync(21, args)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f, got
}

func TestInvokeAsyncProtocolArguments(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv, native.String("a"))

	assert.Equal(t, int64(21), got.fn)
	assert.Equal(t, int64(ctx.ID()), got.contextID)
	assert.NotNil(t, got.handle)
	assert.Equal(t, []native.Value{native.String("a")}, got.rest)
	assert.Equal(t, FuturePending, f.State())
	assert.Equal(t, 1, ctx.PendingAsync())
}

func TestCompleteAsyncResolvesOnScriptGoroutine(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v := native.String("ok")
		got.complete(got.handle, &v, got.contextID, "")
	}()
	wg.Wait()

	assert.Equal(t, FuturePending, f.State(), "settlement waits for the script goroutine")
	assert.Equal(t, 0, ctx.PendingAsync())

	var seen native.Value
	f.Then(func(v native.Value, err error) {
		require.NoError(t, err)
		seen = v
	})
	ctx.RunPending()

	assert.Equal(t, FutureFulfilled, f.State())
	assert.Equal(t, "ok", seen.Text())
	<-f.Done()
}

func TestCompleteAsyncRejectsWithTypeError(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	got.complete(got.handle, nil, got.contextID, "network down")
	ctx.RunPending()

	require.Equal(t, FutureRejected, f.State())
	assert.True(t, IsType(f.Err(), TypeError))
	assert.Contains(t, f.Err().Error(), "network down")
}

func TestCompleteAsyncWithNeitherValueNorError(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	got.complete(got.handle, nil, got.contextID, "")
	ctx.RunPending()
	assert.Equal(t, FuturePending, f.State())
	assert.Equal(t, 0, ctx.PendingAsync())
}

func TestCompleteAsyncTwiceIsNoop(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	first, second := native.Int64(1), native.Int64(2)
	got.complete(got.handle, &first, got.contextID, "")
	got.complete(got.handle, &second, got.contextID, "")
	ctx.RunPending()

	assert.Equal(t, int64(1), f.Value().Int())
}

func TestCompleteAsyncAfterDisposeIsDropped(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	ctx.Dispose()
	v := native.String("late")
	assert.NotPanics(t, func() { got.complete(got.handle, &v, got.contextID, "") })
	ctx.RunPending()

	assert.Equal(t, FuturePending, f.State())
	assert.Equal(t, 0, ctx.PendingAsync())
}

func TestCompleteAsyncWithStaleContextID(t *testing.T) {
	ctx, b, inv := newBound(t)
	f, got := startAsync(t, ctx, b, inv)

	v := native.String("x")
	got.complete(got.handle, &v, got.contextID+1, "")
	ctx.RunPending()
	assert.Equal(t, FuturePending, f.State())
	assert.Equal(t, 1, ctx.PendingAsync())

	got.complete(got.handle, &v, got.contextID, "")
	ctx.RunPending()
	assert.Equal(t, FutureFulfilled, f.State())
}

func TestCompleteAsyncIgnoresForeignHandles(t *testing.T) {
	assert.NotPanics(t, func() {
		CompleteAsync("not a handle", nil, 0, "")
		CompleteAsync(nil, nil, 0, "")
	})
}

func TestInvokeAsyncStartFailure(t *testing.T) {
	ctx, b, inv := newBound(t)
	inv.On("InvokeFromNative", mock.Anything, mock.Anything, mock.Anything).
		Return(native.Null(), errors.New("unknown function"))

	f, err := b.InvokeAsync(3, nil)
	assert.Nil(t, f)
	assert.True(t, IsType(err, HostError))
	assert.Equal(t, 0, ctx.PendingAsync())
}
