package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/roach88/anchor/internal/ir"
	"github.com/roach88/anchor/internal/router"
	"github.com/roach88/anchor/internal/schema"
	"github.com/roach88/anchor/internal/telemetry"
	"github.com/roach88/anchor/internal/world"
)

const (
	maxBodyBytes      = 1 << 20
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// StateReader is the read side of the World Store.
type StateReader interface {
	Snapshot() world.State
	DiffSince(base ir.Checksum) (world.Diff, error)
}

// IntentSink accepts intents for the sim goroutine.
type IntentSink interface {
	Enqueue(in ir.Intent) bool
	Closed() bool
}

// InputSink accepts raw input events for the next tick.
type InputSink interface {
	PushInput(ev ir.InputEvent)
}

// Server serves the synchronization endpoints.
type Server struct {
	state     StateReader
	intents   IntentSink
	inputs    InputSink
	validator *schema.Validator
	router    *router.Router
	hub       *Hub
	readOnly  bool
	logger    *zap.Logger
	tracer    trace.Tracer
	upgrader  websocket.Upgrader
	handler   http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithInputs enables /v1/commands, routing text into sink.
func WithInputs(sink InputSink) Option {
	return func(s *Server) { s.inputs = sink }
}

// WithRouter replaces the default text command router.
func WithRouter(r *router.Router) Option {
	return func(s *Server) {
		if r != nil {
			s.router = r
		}
	}
}

// WithHub replaces the default stream hub.
func WithHub(h *Hub) Option {
	return func(s *Server) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithReadOnly makes every write endpoint answer READ_ONLY.
func WithReadOnly(readOnly bool) Option {
	return func(s *Server) { s.readOnly = readOnly }
}

// WithLogger sets the server's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer replaces the global-provider tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New creates a Server over a state reader and an intent sink.
func New(state StateReader, intents IntentSink, v *schema.Validator, opts ...Option) *Server {
	s := &Server{
		state:     state,
		intents:   intents,
		validator: v,
		router:    router.New(),
		logger:    zap.NewNop(),
		tracer:    telemetry.Tracer(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(0, s.logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/diff", s.handleDiff)
	mux.HandleFunc("POST /v1/intents", s.handleIntent)
	mux.HandleFunc("POST /v1/commands", s.handleCommand)
	mux.HandleFunc("GET /v1/schema", s.handleSchema)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	s.handler = s.traced(mux)
	return s
}

// Handler returns the traced request handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the stream hub. Register it as a sim observer.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
// and ends open streams.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	s.logger.Info("sync service listening", zap.String("addr", addr), zap.Bool("read_only", s.readOnly))
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Hijacked stream connections are invisible to Shutdown.
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close ends all streams and waits for their handlers to return.
func (s *Server) Close() {
	s.hub.Close()
	s.hub.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	since, err := world.ParseChecksumParam("since", r.URL.Query().Get("since"))
	if err != nil {
		writeDiffError(w, err)
		return
	}
	d, err := s.state.DiffSince(since)
	if err != nil {
		writeDiffError(w, err)
		return
	}
	writeOK(w, http.StatusOK, d)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	if s.readOnly {
		writeError(w, http.StatusConflict, ErrCodeReadOnly, "intents are not accepted while replaying")
		return
	}

	var in ir.Intent
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := s.validator.ValidateIntent(in); err != nil {
		var ie *schema.IntentError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, string(ie.Code), ie.Message)
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	in.Args = ir.CompactPayload(in.Args)
	if !s.intents.Enqueue(in) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeQueueClosed, "simulation has stopped")
		return
	}
	s.logger.Debug("intent queued", zap.String("verb", string(in.Verb)))
	writeOK(w, http.StatusAccepted, in)
}

type commandRequest struct {
	Text string `json:"text"`
}

type commandResponse struct {
	Events []ir.InputEvent `json:"events"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.readOnly {
		writeError(w, http.StatusConflict, ErrCodeReadOnly, "commands are not accepted while replaying")
		return
	}
	if s.inputs == nil || s.intents.Closed() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeQueueClosed, "simulation is not accepting input")
		return
	}

	var req commandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	events, err := s.router.Route(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, router.ErrCodeUnknownCommand, err.Error())
		return
	}
	for _, ev := range events {
		s.inputs.PushInput(ev)
	}
	writeOK(w, http.StatusAccepted, commandResponse{Events: events})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, schema.Schemas())
}

// decodeBody decodes one JSON value strictly from a size-limited body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: trailing data")
	}
	return nil
}
