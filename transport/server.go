package transport

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

// Handler serves one session on the host side. Asynchronous calls reach it
// with a completion handle and a bridge.AsyncCompleter as Pointer values in
// arguments 3 and 4, exactly as an in-process host receives them.
type Handler interface {
	command.Sink
	Invoke(id int64, method native.Value, args []native.Value) (native.Value, error)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnSession registers fn to run when a session starts.
func OnSession(fn func(*Session)) ServerOption {
	return func(s *Server) { s.onSession = append(s.onSession, fn) }
}

// Server accepts script-process connections. It implements http.Handler.
type Server struct {
	newHandler func(*Session) Handler
	logger     *zap.Logger
	onSession  []func(*Session)
	ws         websocket.Server

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates a server that builds one Handler per session.
func NewServer(newHandler func(*Session) Handler, opts ...ServerOption) *Server {
	s := &Server{
		newHandler: newHandler,
		logger:     zap.NewNop(),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("transport")
	s.ws = websocket.Server{Handler: s.serve}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ws.ServeHTTP(w, r)
}

// Session returns the live session with the given id, or nil.
func (s *Server) Session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// Sessions returns the ids of live sessions, sorted.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close ends every live session.
func (s *Server) Close() {
	s.mu.Lock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()
	for _, sess := range live {
		sess.Close()
	}
}

func (s *Server) serve(ws *websocket.Conn) {
	sess := &Session{
		id:     uuid.NewString(),
		ws:     ws,
		done:   make(chan struct{}),
		logger: s.logger,
	}
	sess.logger = s.logger.With(zap.String("session", sess.id))

	if err := sess.send(Message{Kind: KindHello, Session: sess.id}); err != nil {
		sess.logger.Warn("handshake failed", zap.Error(err))
		return
	}
	h := s.newHandler(sess)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.shutdown()
		sess.logger.Debug("session ended")
	}()

	for _, fn := range s.onSession {
		fn(sess)
	}
	sess.logger.Debug("session started")

	for {
		var m Message
		if err := websocket.JSON.Receive(ws, &m); err != nil {
			return
		}
		switch m.Kind {
		case KindCommands:
			if err := h.Deliver(m.Commands); err != nil {
				sess.logger.Warn("command delivery failed", zap.Error(err))
			}
		case KindInvoke:
			sess.answer(h, m)
		default:
			sess.logger.Warn("unexpected message", zap.String("kind", string(m.Kind)))
		}
	}
}

// Session is the host end of one script-process connection.
type Session struct {
	id     string
	ws     *websocket.Conn
	logger *zap.Logger

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends the session.
func (s *Session) Close() error {
	err := s.ws.Close()
	s.shutdown()
	return err
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) send(m Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	return websocket.JSON.Send(s.ws, m)
}

// Dispatch sends a host-originated occurrence to target id on the script
// side.
func (s *Session) Dispatch(id int64, ev bridge.NativeEvent) error {
	return s.send(Message{Kind: KindEvent, Target: id, Event: &ev})
}

func (s *Session) answer(h Handler, m Message) {
	res := Message{Kind: KindResult, Seq: m.Seq}
	if m.Method == nil {
		res.Error = "transport: invoke without method"
		s.reply(res)
		return
	}

	args := m.Args
	if isAsyncCall(*m.Method, args) {
		token := args[2].Text()
		args = slices.Clone(args)
		args[2] = native.Pointer(token)
		args[3] = native.Pointer(bridge.AsyncCompleter(s.complete))
	}

	v, err := h.Invoke(m.Target, *m.Method, args)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Value = &v
	}
	s.reply(res)
}

func (s *Session) reply(m Message) {
	if err := s.send(m); err != nil {
		s.logger.Debug("reply not sent", zap.Uint64("seq", m.Seq), zap.Error(err))
	}
}

// complete forwards an async completion back to the script process. The
// handle is the call's token.
func (s *Session) complete(handle any, value *native.Value, contextID int64, errMsg string) {
	token, ok := handle.(string)
	if !ok {
		s.logger.Warn("completion with foreign handle", zap.String("handle", fmt.Sprintf("%T", handle)))
		return
	}
	if err := s.send(Message{Kind: KindComplete, Token: token, Context: contextID, Value: value, Error: errMsg}); err != nil {
		s.logger.Debug("completion not sent", zap.String("token", token), zap.Error(err))
	}
}
