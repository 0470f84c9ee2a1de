// Package server implements the session worker: it owns the collection
// catalog, serves one request at a time and switches between its standard
// endpoint and an exclusive lock endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/guyvdb/docstore/catalog"
	"github.com/guyvdb/docstore/fault"
	"github.com/guyvdb/docstore/store"
	"github.com/guyvdb/docstore/wire"
)

// State is the session state of a Server.
type State int32

const (
	// StateNormal serves the standard endpoint.
	StateNormal State = iota
	// StateLocked serves only the lock endpoint. The standard endpoint stays
	// bound but its clients are not served.
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateLocked:
		return "LOCKED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Spec struct {
	Config  *Config
	Catalog *catalog.Catalog
	Log     *slog.Logger
}

// Server is a single threaded session worker. Requests from all connected
// clients are funnelled into one loop and processed to completion in turn,
// so the stores need no locking of their own.
type Server struct {
	Spec Spec

	normal *Endpoint
	locked *Endpoint
	state  atomic.Int32

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a new Server instance.
func New(spec *Spec) *Server {
	if spec.Log == nil {
		spec.Log = slog.Default()
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}
	if spec.Catalog == nil {
		spec.Catalog = catalog.New(spec.Log)
	}
	return &Server{
		Spec: *spec,
		done: make(chan struct{}),
	}
}

// Listen binds the standard endpoint. Run calls it when needed; calling it
// first lets the caller learn the bound address.
func (s *Server) Listen() error {
	if s.normal != nil {
		return nil
	}
	ep, err := Listen(s.Spec.Config.Addr, s.Spec.Log)
	if err != nil {
		return err
	}
	s.normal = ep
	s.Spec.Log.Info("session server listening", "addr", ep.Addr(), "readOnly", s.Spec.Config.ReadOnly)
	return nil
}

// Addr returns the bound standard endpoint, or "" before Listen.
func (s *Server) Addr() string {
	if s.normal == nil {
		return ""
	}
	return s.normal.Addr()
}

// State returns the current session state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Run processes requests until ctx is done or Close is called. A read only
// server wakes up every poll interval while idle and reloads its
// collections.
func (s *Server) Run(ctx context.Context) error {
	if s.closed.Load() {
		return fault.ErrServerClosed
	}
	if err := s.Listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.Spec.Config.ReadOnly {
		ticker := time.NewTicker(s.Spec.Config.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		ep := s.normal
		if s.State() == StateLocked {
			ep = s.locked
		}

		select {
		case <-ctx.Done():
			s.closeEndpoints()
			return nil
		case <-s.done:
			return nil
		case <-tick:
			if err := s.Spec.Catalog.ReloadAll(); err != nil {
				s.Spec.Log.Warn("Server.Run() - reload failed", "error", err)
			}
		case ex := <-ep.requests:
			s.serve(ex)
		}
	}
}

// serve answers one exchange and then applies any state transition the
// request asked for.
func (s *Server) serve(ex *exchange) {
	resp, after := s.handle(ex.payload)

	data, err := gojson.Marshal(resp)
	if err != nil {
		s.Spec.Log.Error("Server.serve() - failed to encode response", "error", err)
		data, _ = gojson.Marshal(wire.Failure(wire.NewError(wire.CodeInternal, err.Error())))
	}
	ex.reply <- data

	if after != nil {
		after(ex)
	}
}

// handle decodes and executes one request. It always produces a response;
// panics are recovered and reported as internal errors.
func (s *Server) handle(payload []byte) (resp *wire.Response, after func(*exchange)) {
	req := &wire.Request{}

	defer func() {
		if r := recover(); r != nil {
			s.Spec.Log.Error("Server.handle() - recovered panic", "mode", req.Mode, "func", req.Func, "panic", r)
			e := wire.NewError(wire.CodeInternal, fmt.Sprint(r))
			if s.Spec.Config.Debug {
				e.Detail = string(debug.Stack())
			}
			resp, after = wire.Failure(e), nil
		}
	}()

	if err := wire.Unmarshal(payload, req); err != nil {
		return s.failure(req, err), nil
	}
	s.Spec.Log.Debug("Server.handle() - received request", "mode", req.Mode, "db", req.DB, "func", req.Func)

	var result any
	var err error
	switch req.Mode {
	case wire.ModeRun:
		result, err = s.run(req)
	case wire.ModeReadAll:
		result, err = s.readAll()
	case wire.ModeLock:
		result, after, err = s.lock()
	case wire.ModeUnlock:
		result, after = s.unlock()
	case wire.ModeExec:
		err = fault.ErrExecDisabled
	default:
		err = fmt.Errorf("%w: '%s'", fault.ErrUnknownMode, req.Mode)
	}
	if err != nil {
		return s.failure(req, err), nil
	}

	resp, err = wire.Success(result)
	if err != nil {
		return s.failure(req, err), nil
	}
	return resp, after
}

func (s *Server) failure(req *wire.Request, err error) *wire.Response {
	s.Spec.Log.Warn("Server.handle() - request failed", "mode", req.Mode, "db", req.DB, "func", req.Func, "error", err)
	return wire.Failure(err)
}

func (s *Server) readAll() (map[string][]store.Document, error) {
	out := make(map[string][]store.Document)
	for _, name := range s.Spec.Catalog.Names() {
		st, err := s.Spec.Catalog.Get(name)
		if err != nil {
			return nil, err
		}
		docs, err := st.All()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out[name] = docs
	}
	return out, nil
}

// lock binds the lock endpoint before answering, so the advertised address
// is reachable by the time the client reads it.
func (s *Server) lock() (any, func(*exchange), error) {
	if s.State() == StateLocked {
		return nil, nil, fault.ErrAlreadyLocked
	}

	ep, err := Listen(s.Spec.Config.LockAddr, s.Spec.Log)
	if err != nil {
		return nil, nil, err
	}
	s.locked = ep

	after := func(*exchange) {
		s.state.Store(int32(StateLocked))
		s.Spec.Log.Info("Server.lock() - locked", "uri", ep.Addr())
	}
	return wire.LockResult{Locked: true, URI: ep.Addr()}, after, nil
}

// unlock answers on the lock endpoint, waits for the answer to be written
// and then closes the lock endpoint. Unlocking an unlocked server is a
// no-op.
func (s *Server) unlock() (any, func(*exchange)) {
	result := wire.LockResult{Locked: false}
	if s.State() != StateLocked {
		return result, nil
	}

	after := func(ex *exchange) {
		select {
		case <-ex.written:
		case <-s.done:
		}
		if err := s.locked.Close(); err != nil {
			s.Spec.Log.Warn("Server.unlock() - failed to close lock endpoint", "error", err)
		}
		s.locked = nil
		s.state.Store(int32(StateNormal))
		s.Spec.Log.Info("Server.unlock() - unlocked")
	}
	return result, after
}

func (s *Server) closeEndpoints() {
	if s.locked != nil {
		s.locked.Close()
	}
	if s.normal != nil {
		s.normal.Close()
	}
}

// Close stops the request loop and both endpoints. The catalog is left
// open for its owner to close.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	s.closeEndpoints()
	s.Spec.Log.Info("session server stopped")
	return nil
}
