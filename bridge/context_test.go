package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

type sinkRecorder struct {
	mu       sync.Mutex
	commands []command.Command
}

func (r *sinkRecorder) Deliver(batch []command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, batch...)
	return nil
}

func (r *sinkRecorder) ops() []command.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]command.Op, len(r.commands))
	for i, c := range r.commands {
		out[i] = c.Op
	}
	return out
}

type stubTarget struct {
	events []NativeEvent
}

func (s *stubTarget) HandleCallFromHost(method native.Value, args []native.Value) (native.Value, error) {
	return native.String("handled:" + native.ParseMethod(method).String()), nil
}

func (s *stubTarget) DispatchFromHost(ev NativeEvent) {
	s.events = append(s.events, ev)
}

func newTestContext(t *testing.T, opts ...Option) (*Pool, *Context) {
	t.Helper()
	p := NewPool()
	t.Cleanup(p.Close)
	return p, p.NewContext(opts...)
}

func TestContextIDPacking(t *testing.T) {
	id := MakeContextID(3, 7)
	assert.Equal(t, int32(3), id.Slot())
	assert.Equal(t, uint32(7), id.Generation())
	assert.Equal(t, "ctx(3/7)", id.String())
}

func TestPoolReusesSlotWithNewGeneration(t *testing.T) {
	p := NewPool()
	defer p.Close()

	first := p.NewContext()
	oldID := first.ID()
	require.Same(t, first, p.Lookup(oldID))
	assert.Equal(t, 1, p.Len())

	first.Dispose()
	assert.False(t, first.IsValid())
	assert.Nil(t, p.Lookup(oldID))
	assert.Equal(t, 0, p.Len())

	second := p.NewContext()
	assert.Equal(t, oldID.Slot(), second.ID().Slot())
	assert.NotEqual(t, oldID, second.ID())
	assert.Nil(t, p.Lookup(oldID), "a stale id never resolves to the slot's new context")
	assert.Same(t, second, p.Lookup(second.ID()))
}

func TestCounterAllocatorSkipsReservedIDs(t *testing.T) {
	a := NewCounterAllocator(-3)
	assert.Equal(t, int64(-3), a.Next())
	assert.Equal(t, int64(0), a.Next())
	assert.Equal(t, int64(1), a.Next())
}

func TestRunPendingDrainsNestedPosts(t *testing.T) {
	_, ctx := newTestContext(t)

	var order []string
	ctx.Post(func() {
		order = append(order, "a")
		ctx.Post(func() { order = append(order, "c") })
	})
	ctx.Post(func() { order = append(order, "b") })
	assert.True(t, ctx.HasPending())

	assert.Equal(t, 3, ctx.RunPending())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.False(t, ctx.HasPending())
}

func TestRunPendingReportsPanics(t *testing.T) {
	var reported []error
	_, ctx := newTestContext(t, WithErrorHandler(func(err error) { reported = append(reported, err) }))

	ran := false
	ctx.Post(func() { panic("boom") })
	ctx.Post(func() { ran = true })
	ctx.RunPending()

	assert.True(t, ran, "a panicking task does not stop the drain")
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "boom")
}

func TestPostAfterDispose(t *testing.T) {
	_, ctx := newTestContext(t)
	ctx.Dispose()
	assert.False(t, ctx.Post(func() {}))
	assert.Equal(t, 0, ctx.RunPending())
}

func TestDisposeFlushesCommands(t *testing.T) {
	rec := &sinkRecorder{}
	_, ctx := newTestContext(t, WithCommandSink(rec))

	ctx.Commands().Register(command.Command{TargetID: 5, Op: command.OpAddEvent, Args: []string{"click"}})
	ctx.Dispose()
	ctx.Dispose()

	assert.Equal(t, []command.Op{command.OpAddEvent}, rec.ops())
}

func TestScheduleDisposal(t *testing.T) {
	p, ctx := newTestContext(t)

	ScheduleDisposal(p, ctx.ID(), 9)
	p.Worker().Sync()
	require.Equal(t, 1, ctx.Commands().Len())

	rec := &sinkRecorder{}
	ctx.SetCommandSink(rec)
	ctx.FlushCommands()
	require.Len(t, rec.commands, 1)
	assert.Equal(t, int64(9), rec.commands[0].TargetID)
	assert.Equal(t, command.OpDisposeEventTarget, rec.commands[0].Op)
}

func TestScheduleDisposalDroppedForDeadContext(t *testing.T) {
	p, ctx := newTestContext(t)
	id := ctx.ID()
	ctx.Dispose()
	next := p.NewContext()

	ScheduleDisposal(p, id, 9)
	p.Worker().Sync()
	assert.Equal(t, 0, next.Commands().Len())
}

func TestDispatchFromHostReachesTarget(t *testing.T) {
	_, ctx := newTestContext(t)
	target := &stubTarget{}
	b, err := NewBindingObject(ctx, 12, target)
	require.NoError(t, err)

	require.True(t, ctx.DispatchFromHost(12, NativeEvent{Type: "click"}))
	require.True(t, ctx.DispatchFromHost(99, NativeEvent{Type: "click"}))
	assert.Empty(t, target.events, "host events wait for the script goroutine")

	ctx.RunPending()
	require.Len(t, target.events, 1)
	assert.Equal(t, "click", target.events[0].Type)
	assert.Same(t, b.Native(), ctx.Object(12))
}

func TestReportErrorIgnoresNil(t *testing.T) {
	calls := 0
	_, ctx := newTestContext(t, WithErrorHandler(func(error) { calls++ }))
	ctx.ReportError(nil)
	ctx.ReportError(errors.New("x"))
	assert.Equal(t, 1, calls)
}
