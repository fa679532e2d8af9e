package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

const defaultOrigin = "http://localhost/"

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInvokeTimeout bounds how long a synchronous call waits for the host.
func WithInvokeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type pendingAsync struct {
	handle   any
	complete bridge.AsyncCompleter
}

// Client is the script-process end of a host connection. It is the command
// sink of one bridge context and the invoker of every target it announces.
type Client struct {
	ws      *websocket.Conn
	bctx    *bridge.Context
	logger  *zap.Logger
	session string
	timeout time.Duration

	sendMu sync.Mutex
	seq    atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Message
	async   map[string]pendingAsync

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to the host at url and attaches the connection to bctx.
func Dial(ctx context.Context, url string, bctx *bridge.Context, opts ...ClientOption) (*Client, error) {
	cfg, err := websocket.NewConfig(url, defaultOrigin)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}

	var hello Message
	if err := websocket.JSON.Receive(ws, &hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("transport: handshake: %w", err)
	}
	if hello.Kind != KindHello || hello.Session == "" {
		ws.Close()
		return nil, fmt.Errorf("transport: handshake: unexpected %q message", hello.Kind)
	}

	c := &Client{
		ws:      ws,
		bctx:    bctx,
		logger:  zap.NewNop(),
		session: hello.Session,
		timeout: 5 * time.Second,
		pending: make(map[uint64]chan Message),
		async:   make(map[string]pendingAsync),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("transport").With(zap.String("session", c.session))

	bctx.SetCommandSink(c)
	go c.readLoop()
	c.logger.Debug("connected", zap.String("url", url))
	return c, nil
}

// Session returns the id the host assigned to this connection.
func (c *Client) Session() string { return c.session }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.ws.Close()
	c.shutdown(ErrClosed)
	return err
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Client) send(m Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return websocket.JSON.Send(c.ws, m)
}

// Deliver implements command.Sink. Announced targets get the client as
// their invoker before the batch is forwarded.
func (c *Client) Deliver(batch []command.Command) error {
	for _, cmd := range batch {
		if cmd.Op != command.OpCreateEventTarget {
			continue
		}
		if obj := bridge.Announced(cmd); obj != nil {
			obj.Install(c)
		}
	}
	return c.send(Message{Kind: KindCommands, Context: int64(c.bctx.ID()), Commands: batch})
}

// InvokeFromNative implements bridge.HostInvoker. It blocks until the host
// answers or the invoke timeout elapses.
func (c *Client) InvokeFromNative(obj *bridge.NativeObject, method native.Value, args []native.Value) (native.Value, error) {
	var token string
	if isAsyncCall(method, args) {
		complete, ok := args[3].Ptr().(bridge.AsyncCompleter)
		if !ok {
			return native.Null(), fmt.Errorf("transport: argument 4 is %T, want a completer", args[3].Ptr())
		}
		token = uuid.NewString()
		c.mu.Lock()
		c.async[token] = pendingAsync{handle: args[2].Ptr(), complete: complete}
		c.mu.Unlock()
		args = withToken(args, token)
	}

	res, err := c.call(Message{
		Kind:    KindInvoke,
		Target:  obj.ID(),
		Context: int64(c.bctx.ID()),
		Method:  &method,
		Args:    args,
	})
	if err != nil && token != "" {
		c.mu.Lock()
		delete(c.async, token)
		c.mu.Unlock()
	}
	return res, err
}

func (c *Client) call(m Message) (native.Value, error) {
	m.Seq = c.seq.Add(1)
	ch := make(chan Message, 1)
	c.mu.Lock()
	c.pending[m.Seq] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, m.Seq)
		c.mu.Unlock()
	}()

	if err := c.send(m); err != nil {
		return native.Null(), err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Error != "" {
			return native.Null(), errors.New(res.Error)
		}
		if res.Value == nil {
			return native.Null(), nil
		}
		return *res.Value, nil
	case <-timer.C:
		return native.Null(), ErrTimeout
	case <-c.done:
		return native.Null(), ErrClosed
	}
}

func (c *Client) readLoop() {
	for {
		var m Message
		if err := websocket.JSON.Receive(c.ws, &m); err != nil {
			c.logger.Debug("connection ended", zap.Error(err))
			c.shutdown(err)
			return
		}
		switch m.Kind {
		case KindResult:
			c.mu.Lock()
			ch, ok := c.pending[m.Seq]
			c.mu.Unlock()
			if ok {
				ch <- m
			}
		case KindEvent:
			if m.Event != nil {
				c.bctx.DispatchFromHost(m.Target, *m.Event)
			}
		case KindComplete:
			c.mu.Lock()
			pa, ok := c.async[m.Token]
			delete(c.async, m.Token)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("completion for unknown call", zap.String("token", m.Token))
				continue
			}
			pa.complete(pa.handle, m.Value, m.Context, m.Error)
		default:
			c.logger.Warn("unexpected message", zap.String("kind", string(m.Kind)))
		}
	}
}
