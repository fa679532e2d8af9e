package command

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]Command
	err     error
}

func (r *recorder) Deliver(batch []Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return r.err
}

func (r *recorder) all() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Command
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func TestQueueFlushDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec)

	q.Register(Command{TargetID: 1, Op: OpCreateEventTarget})
	q.Register(Command{TargetID: 1, Op: OpAddEvent, Args: []string{"click"}})
	assert.Equal(t, 2, q.Len())
	assert.Empty(t, rec.all(), "nothing is delivered before a flush")

	require.NoError(t, q.Flush())
	assert.Equal(t, 0, q.Len())
	require.Len(t, rec.batches, 1)
	assert.Equal(t, OpCreateEventTarget, rec.batches[0][0].Op)
	assert.Equal(t, []string{"click"}, rec.batches[0][1].Args)

	require.NoError(t, q.Flush())
	assert.Len(t, rec.batches, 1, "empty flush delivers nothing")
}

func TestQueueAutoFlush(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec, WithAutoFlush(2))

	q.Register(Command{TargetID: 1, Op: OpAddEvent})
	assert.Empty(t, rec.all())
	q.Register(Command{TargetID: 2, Op: OpAddEvent})
	assert.Len(t, rec.all(), 2)
}

func TestQueueFlushReportsSinkError(t *testing.T) {
	boom := errors.New("host gone")
	q := NewQueue(&recorder{err: boom})
	q.Register(Command{TargetID: 3, Op: OpDisposeEventTarget})
	assert.ErrorIs(t, q.Flush(), boom)
	assert.Equal(t, 0, q.Len(), "failed batches are not retried")
}

func TestCommandJSON(t *testing.T) {
	raw, err := json.Marshal(Command{TargetID: 9, Op: OpAddEvent, Args: []string{"load"}, Native: struct{}{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"op":"add-event","args":["load"]}`, string(raw))

	var cmd Command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	assert.Equal(t, OpAddEvent, cmd.Op)
	assert.Nil(t, cmd.Native)
}

func TestWorkerRunsTasksInOrder(t *testing.T) {
	w := NewWorker(4, nil)
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, w.Submit(func() { got = append(got, i) }))
	}
	w.Submit(func() { panic("recovered") })
	w.Sync()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)

	w.Close()
	assert.False(t, w.Submit(func() {}))
}

func TestAsyncSinkPreservesOrder(t *testing.T) {
	rec := &recorder{}
	s := NewAsyncSink(rec, 1, nil)
	q := NewQueue(s)
	for i := int64(0); i < 5; i++ {
		q.Register(Command{TargetID: i, Op: OpAddEvent})
		require.NoError(t, q.Flush())
	}
	s.Close()

	cmds := rec.all()
	require.Len(t, cmds, 5)
	for i, c := range cmds {
		assert.Equal(t, int64(i), c.TargetID)
	}
}
