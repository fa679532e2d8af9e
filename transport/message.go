// Package transport carries the host boundary over a websocket: the script
// process runs a Client that forwards commands and invocations, and the host
// process runs a Server that answers them and pushes events back.
package transport

import (
	"errors"
	"slices"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

// Kind names a wire message.
type Kind string

const (
	KindHello    Kind = "hello"
	KindCommands Kind = "commands"
	KindInvoke   Kind = "invoke"
	KindResult   Kind = "result"
	KindEvent    Kind = "event"
	KindComplete Kind = "complete"
)

// Message is the single envelope exchanged in both directions.
type Message struct {
	Kind     Kind                `json:"kind"`
	Session  string              `json:"session,omitempty"`
	Seq      uint64              `json:"seq,omitempty"`
	Target   int64               `json:"target,omitempty"`
	Context  int64               `json:"context,omitempty"`
	Method   *native.Value       `json:"method,omitempty"`
	Args     []native.Value      `json:"args,omitempty"`
	Commands []command.Command   `json:"commands,omitempty"`
	Value    *native.Value       `json:"value,omitempty"`
	Error    string              `json:"error,omitempty"`
	Event    *bridge.NativeEvent `json:"event,omitempty"`
	// Token identifies an asynchronous call in place of its completion handle.
	Token string `json:"token,omitempty"`
}

var (
	// ErrClosed is returned by calls on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
	// ErrTimeout is returned when the host does not answer a call in time.
	ErrTimeout = errors.New("transport: call timed out")
)

// isAsyncCall reports whether method starts a host async function, whose
// third and fourth arguments are the process-local completion handle and
// completer.
func isAsyncCall(method native.Value, args []native.Value) bool {
	m := native.ParseMethod(method)
	return m.IsOp && m.Op == native.OpAsyncAnonymousFunction && len(args) >= 4
}

// withToken replaces the process-local completion arguments by token.
func withToken(args []native.Value, token string) []native.Value {
	out := slices.Clone(args)
	out[2] = native.String(token)
	out[3] = native.Null()
	return out
}
