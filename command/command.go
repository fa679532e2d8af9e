// Package command implements the append-only command stream that carries
// script-side mutations to the host, and the worker that drains tasks on the
// host-communication goroutine.
package command

import (
	"fmt"
	"strconv"
)

// Op identifies what a command asks the host to do.
type Op uint8

const (
	// OpCreateEventTarget announces a new target and carries its native
	// shadow so an in-process host can install an invoker.
	OpCreateEventTarget Op = iota
	// OpAddEvent tells the host a (target, kind) pair has listeners.
	OpAddEvent
	// OpDisposeEventTarget tells the host the target's resources may be released.
	OpDisposeEventTarget
)

var opNames = [...]string{
	OpCreateEventTarget:  "create-event-target",
	OpAddEvent:           "add-event",
	OpDisposeEventTarget: "dispose-event-target",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	if int(op) >= len(opNames) {
		return nil, fmt.Errorf("command: unknown op %d", op)
	}
	return []byte(opNames[op]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Op) UnmarshalText(text []byte) error {
	for i, name := range opNames {
		if name == string(text) {
			*op = Op(i)
			return nil
		}
	}
	return fmt.Errorf("command: unknown op %q", text)
}

// Command is one entry of the stream.
type Command struct {
	TargetID int64    `json:"id"`
	Op       Op       `json:"op"`
	Args     []string `json:"args,omitempty"`
	Flags    uint32   `json:"flags,omitempty"`

	// Native is a process-local payload (a weak pointer to the target's
	// shadow for OpCreateEventTarget). It never crosses a wire.
	Native any `json:"-"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s(id=%d args=%v)", c.Op, c.TargetID, c.Args)
}

// Sink receives flushed batches in order.
type Sink interface {
	Deliver(batch []Command) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(batch []Command) error

// Deliver calls f.
func (f SinkFunc) Deliver(batch []Command) error { return f(batch) }
