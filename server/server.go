// Package server exposes a running System over HTTP and websockets.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delaneyj/cdom/cdom"
)

var (
	ErrUnknownCell   = errors.New("unknown cell")
	ErrNotContainer  = errors.New("cell is not a container")
	ErrEmptyRequest  = errors.New("expr or descriptor required")
	errSlowConsumer  = errors.New("subscriber fell behind")
	maxBodyBytes     = int64(1 << 20)
	frameBufferDepth = 16
)

// Server routes requests onto the System's owner goroutine. The System's Run
// loop must be running for requests to complete.
type Server struct {
	sys          *cdom.System
	router       chi.Router
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	gatherer     prometheus.Gatherer
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[uuid.UUID]*conn
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves the gatherer's collectors on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

func New(sys *cdom.System, opts ...Option) *Server {
	s := &Server{
		sys:          sys,
		logger:       sys.Logger(),
		writeTimeout: 10 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		conns: map[uuid.UUID]*conn{},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/cells/{name}", s.getCell)
	r.Get("/cells/{name}/*", s.getCell)
	r.Put("/cells/{name}", s.putCell)
	r.Put("/cells/{name}/*", s.putCell)
	r.Post("/eval", s.eval)
	r.Get("/ws", s.subscribe)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Conns reports the number of open websocket subscriptions.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

// writeRaw sends JSON already marshalled on the System's goroutine, so no
// live cell value is read after Do returns.
func (s *Server) writeRaw(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(raw, '\n')); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

// do runs fn on the System's goroutine, failing with 503 if the request is
// cancelled first.
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.sys.Do(r.Context(), fn); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

func (s *Server) getCell(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := cdom.ParsePath(chi.URLParam(r, "*"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		raw    []byte
		found  bool
		encErr error
	)
	if !s.do(w, r, func() {
		h, ok := s.sys.Global(name)
		if !ok {
			return
		}
		var v any
		if v, found = lookup(cdom.Unwrap(h), p); found {
			raw, encErr = json.Marshal(v)
		}
	}) {
		return
	}
	switch {
	case !found:
		s.writeError(w, http.StatusNotFound, ErrUnknownCell)
	case encErr != nil:
		s.writeError(w, http.StatusInternalServerError, encErr)
	default:
		s.writeRaw(w, http.StatusOK, raw)
	}
}

func lookup(v any, p cdom.Path) (any, bool) {
	for _, seg := range p {
		switch x := v.(type) {
		case map[string]any:
			next, ok := x[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, ok := index(seg, len(x))
			if !ok {
				return nil, false
			}
			v = x[i]
		default:
			return nil, false
		}
	}
	return v, true
}

func index(seg string, n int) (int, bool) {
	i := 0
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		i = i*10 + int(r-'0')
		if i >= n {
			return 0, false
		}
	}
	return i, true
}

func (s *Server) putCell(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path := chi.URLParam(r, "*")
	p, err := cdom.ParsePath(path)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var body any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		raw      []byte
		writeErr error
	)
	if !s.do(w, r, func() {
		h, ok := s.sys.Global(name)
		if !ok {
			writeErr = ErrUnknownCell
			return
		}
		switch cell := h.(type) {
		case *cdom.State:
			if len(p) == 0 {
				writeErr = cell.Set(body)
			} else {
				writeErr = cell.SetPath(path, body)
			}
			if writeErr == nil {
				raw, writeErr = json.Marshal(cell.Peek())
			}
		case cdom.Cell:
			if len(p) > 0 {
				writeErr = ErrNotContainer
				return
			}
			if writeErr = cell.Set(body); writeErr == nil {
				raw, writeErr = json.Marshal(cdom.Unwrap(cell))
			}
		default:
			writeErr = ErrNotContainer
		}
	}) {
		return
	}

	var verr *cdom.ValidationError
	switch {
	case writeErr == nil:
		s.writeRaw(w, http.StatusOK, raw)
	case errors.As(writeErr, &verr):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      verr.Error(),
			"violations": violations(verr),
		})
	case errors.Is(writeErr, ErrUnknownCell):
		s.writeError(w, http.StatusNotFound, writeErr)
	case errors.Is(writeErr, ErrNotContainer),
		errors.Is(writeErr, cdom.ErrNotContainer),
		errors.Is(writeErr, cdom.ErrIndexOutOfRange):
		s.writeError(w, http.StatusBadRequest, writeErr)
	default:
		s.writeError(w, http.StatusInternalServerError, writeErr)
	}
}

func violations(verr *cdom.ValidationError) []string {
	out := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		out[i] = v.String()
	}
	return out
}

type evalRequest struct {
	Expr       string `json:"expr"`
	Descriptor any    `json:"descriptor"`
}

type evalResponse struct {
	Value  any  `json:"value"`
	Marker bool `json:"marker,omitempty"`
}

func (s *Server) eval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Expr == "" && req.Descriptor == nil {
		s.writeError(w, http.StatusBadRequest, ErrEmptyRequest)
		return
	}

	var (
		raw    []byte
		encErr error
	)
	if !s.do(w, r, func() {
		var out any
		if req.Expr != "" {
			out = s.sys.Eval(req.Expr, nil, nil)
		} else {
			out = s.sys.EvaluateStructural(cdom.Normalize(req.Descriptor), nil, nil)
		}
		out = cdom.Unwrap(out)
		raw, encErr = json.Marshal(evalResponse{Value: out, Marker: cdom.IsMarker(out)})
	}) {
		return
	}
	if encErr != nil {
		s.writeError(w, http.StatusInternalServerError, encErr)
		return
	}
	s.writeRaw(w, http.StatusOK, raw)
}

// Close drops every websocket subscription.
func (s *Server) Close() error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return nil
}
