package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/dom"
	"github.com/chrisuehlinger/hostbridge/host"
	"github.com/chrisuehlinger/hostbridge/native"
)

type harness struct {
	host     *host.Loopback
	server   *Server
	sessions chan *Session
	url      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{host: host.NewLoopback(), sessions: make(chan *Session, 4)}
	t.Cleanup(h.host.Close)

	h.server = NewServer(func(*Session) Handler { return h.host },
		OnSession(func(s *Session) { h.sessions <- s }))
	ts := httptest.NewServer(h.server)
	t.Cleanup(ts.Close)
	t.Cleanup(h.server.Close)
	h.url = "ws" + strings.TrimPrefix(ts.URL, "http")
	return h
}

func (h *harness) connect(t *testing.T, opts ...ClientOption) (*bridge.Context, *Client) {
	t.Helper()
	pool := bridge.NewPool()
	t.Cleanup(pool.Close)
	bctx := pool.NewContext()

	c, err := Dial(context.Background(), h.url, bctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return bctx, c
}

func announce(t *testing.T, h *harness, bctx *bridge.Context) *dom.EventTarget {
	t.Helper()
	et, err := dom.NewEventTarget(bctx, dom.WithTypeName("DIV"))
	require.NoError(t, err)
	bctx.FlushCommands()
	require.Eventually(t, func() bool { return h.host.TypeName(et.ID()) == "DIV" },
		time.Second, time.Millisecond)
	return et
}

func settle(t *testing.T, bctx *bridge.Context, f *bridge.Future) {
	t.Helper()
	require.Eventually(t, func() bool {
		bctx.RunPending()
		return f.State() != bridge.FuturePending
	}, 2*time.Second, time.Millisecond)
}

func TestHandshake(t *testing.T) {
	h := newHarness(t)
	_, c := h.connect(t)

	require.NotEmpty(t, c.Session())
	sess := <-h.sessions
	assert.Equal(t, c.Session(), sess.ID())
	assert.Same(t, sess, h.server.Session(c.Session()))
	assert.Equal(t, []string{c.Session()}, h.server.Sessions())
}

func TestCommandsInstallClientInvoker(t *testing.T) {
	h := newHarness(t)
	bctx, c := h.connect(t)
	et := announce(t, h, bctx)

	assert.Equal(t, bridge.HostInvoker(c), et.Binding().Native().Invoker())

	require.NoError(t, et.AddEventListener("click", dom.HandleFunc(func(*dom.Event) error { return nil })))
	bctx.FlushCommands()
	assert.Eventually(t, func() bool { return len(h.host.Interest(et.ID())) == 1 },
		time.Second, time.Millisecond)
}

func TestPropertiesOverTheWire(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t)
	et := announce(t, h, bctx)
	h.host.SetProperty(et.ID(), "width", native.Int64(5))

	v, err := et.Binding().GetBindingProperty("width")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int())

	require.NoError(t, et.Binding().SetBindingProperty("label", native.List(native.String("a"), native.Bool(true))))
	stored, ok := h.host.Property(et.ID(), "label")
	require.True(t, ok)
	require.Len(t, stored.Items(), 2)
	assert.Equal(t, "a", stored.Items()[0].Text())

	names, err := et.Binding().GetAllBindingPropertyNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "width"}, names)
}

func TestHostErrorsSurface(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t)
	et := announce(t, h, bctx)

	_, err := et.Binding().InvokeBindingMethod("missing", nil)
	require.Error(t, err)
	assert.True(t, bridge.IsType(err, bridge.HostError))
	assert.Contains(t, err.Error(), "unknown method")
}

func TestPointerArgumentsRejected(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t)
	et := announce(t, h, bctx)

	_, err := et.Binding().InvokeBindingMethod("anything", []native.Value{native.Pointer(et)})
	require.Error(t, err)
	assert.ErrorIs(t, err, native.ErrNotSerializable)
}

func TestAsyncOverTheWire(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t)
	et := announce(t, h, bctx)

	ok := h.host.RegisterAsync(func(_ context.Context, args []native.Value) (native.Value, error) {
		return native.String(strings.ToUpper(args[0].Text())), nil
	})
	bad := h.host.RegisterAsync(func(context.Context, []native.Value) (native.Value, error) {
		return native.Null(), errors.New("unreachable")
	})

	f1, err := et.Binding().InvokeAsync(ok.FunctionID(), []native.Value{native.String("hi")})
	require.NoError(t, err)
	f2, err := et.Binding().InvokeAsync(bad.FunctionID(), nil)
	require.NoError(t, err)

	settle(t, bctx, f1)
	settle(t, bctx, f2)
	assert.Equal(t, "HI", f1.Value().Text())
	assert.Equal(t, bridge.FutureRejected, f2.State())
	assert.Contains(t, f2.Err().Error(), "unreachable")
	assert.Zero(t, bctx.PendingAsync())
}

func TestAsyncStartFailure(t *testing.T) {
	h := newHarness(t)
	bctx, c := h.connect(t)
	et := announce(t, h, bctx)

	f, err := et.Binding().InvokeAsync(77, nil)
	require.Error(t, err)
	assert.Nil(t, f)
	c.mu.Lock()
	assert.Empty(t, c.async)
	c.mu.Unlock()
}

func TestEventsFromHost(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t)
	et := announce(t, h, bctx)
	sess := <-h.sessions

	var got *dom.Event
	require.NoError(t, et.AddEventListener("tap", dom.HandleFunc(func(ev *dom.Event) error {
		got = ev
		return nil
	})))

	require.NoError(t, sess.Dispatch(et.ID(), bridge.NativeEvent{Type: "tap", Detail: native.Int64(3)}))
	require.Eventually(t, func() bool {
		bctx.RunPending()
		return got != nil
	}, time.Second, time.Millisecond)

	assert.True(t, got.IsTrusted)
	assert.Equal(t, int64(3), got.Detail.Int())
	runtime.KeepAlive(et)
}

func TestInvokeTimeout(t *testing.T) {
	h := newHarness(t)
	bctx, _ := h.connect(t, WithInvokeTimeout(20*time.Millisecond))
	et := announce(t, h, bctx)

	h.host.HandleMethod("slow", func(int64, []native.Value) (native.Value, error) {
		time.Sleep(100 * time.Millisecond)
		return native.Null(), nil
	})
	_, err := et.Binding().InvokeBindingMethod("slow", nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestServerCloseEndsClient(t *testing.T) {
	h := newHarness(t)
	bctx, c := h.connect(t)
	et := announce(t, h, bctx)

	h.server.Close()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not observe the closed session")
	}
	require.Error(t, c.Err())

	_, err := et.Binding().GetBindingProperty("width")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialFailure(t *testing.T) {
	pool := bridge.NewPool()
	t.Cleanup(pool.Close)

	ts := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	_, err := Dial(context.Background(), url, pool.NewContext())
	assert.Error(t, err)
}
