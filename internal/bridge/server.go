package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/metrics"
)

// Lifecycle states reported on /health.
const (
	StateIdle      = "idle"
	StateListening = "listening"
)

// Transcript outcomes, returned to clients and counted in metrics.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeTooLarge  = "too_large"
	outcomeFailed    = "failed"
)

// ErrDisabled is returned by Start when the bridge is switched off.
var ErrDisabled = errors.New("bridge: server disabled")

// Server accepts transcripts over HTTP and hands them to a Processor.
type Server struct {
	settings  Settings
	processor Processor
	metrics   *metrics.Metrics
	logger    *zap.Logger
	clock     func() time.Time

	mu      sync.RWMutex
	srv     *http.Server
	addr    net.Addr
	started time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithProcessor sets where validated transcripts go.
func WithProcessor(p Processor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
		}
	}
}

// WithMetrics exposes the registry on /metrics and counts transcripts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the zap logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the server time stamped onto transcripts.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer builds a server; nothing is bound until Start.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings.withDefaults(),
		processor: ProcessorFunc(nil),
		logger:    zap.NewNop(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes without binding a listener. Wrong methods get
// 405 from the mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /transcripts", s.transcripts)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start binds the listener and serves in the background until Shutdown.
// Request contexts derive from ctx.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return ErrDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("bridge: server already started")
	}
	ln, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", s.settings.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.settings.Timeout,
		ReadTimeout:       s.settings.Timeout,
		WriteTimeout:      s.settings.Timeout,
		IdleTimeout:       4 * s.settings.Timeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv, s.addr, s.started = srv, ln.Addr(), s.clock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge: serve failed", zap.Error(err))
		}
	}()
	s.logger.Info("bridge: listening", zap.Stringer("addr", ln.Addr()))
	return nil
}

// Shutdown drains in-flight requests. A nil ctx waits at most two seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.addr = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	return srv.Shutdown(ctx)
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// BaseURL points at the bound address once listening, else the configured one.
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return s.settings.URL()
}

// State is StateListening between Start and Shutdown.
func (s *Server) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.srv == nil {
		return StateIdle
	}
	return StateListening
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		State:    s.State(),
		Protocol: ProtocolVersion,
		Schema:   TranscriptSchemaVersion,
	}
	s.mu.RLock()
	if s.srv != nil {
		resp.UptimeSeconds = int64(s.clock().Sub(s.started) / time.Second)
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

// rejection is a request refused before it reached the processor.
type rejection struct {
	code    int
	outcome string
	reason  string
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (Transcript, *rejection) {
	var t Transcript
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.settings.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return t, &rejection{http.StatusRequestEntityTooLarge, outcomeTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)}
		}
		return t, &rejection{http.StatusBadRequest, outcomeInvalid, "unreadable body"}
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return t, &rejection{http.StatusBadRequest, outcomeInvalid, "body is not a transcript JSON object"}
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, &rejection{http.StatusBadRequest, outcomeInvalid, err.Error()}
	}
	return t, nil
}

func (s *Server) transcripts(w http.ResponseWriter, r *http.Request) {
	t, rej := s.decode(w, r)
	if rej != nil {
		s.metrics.ObserveTranscript(rej.outcome)
		writeJSON(w, rej.code, transcriptResponse{Status: rej.outcome, Error: rej.reason})
		return
	}
	t.StampServerTime(s.clock())
	code, outcome := http.StatusAccepted, outcomeAccepted
	resp := transcriptResponse{ServerTime: &t.ServerTime}
	switch err := s.processor.HandleTranscript(t); {
	case errors.Is(err, ErrDuplicate):
		code, outcome = http.StatusOK, outcomeDuplicate
	case err != nil:
		code, outcome = http.StatusInternalServerError, outcomeFailed
		resp = transcriptResponse{Error: "transcript processing failed"}
		s.logger.Warn("bridge: processor failed", zap.String("event_id", t.EventID), zap.Error(err))
	default:
		s.logger.Debug("bridge: transcript accepted",
			zap.String("event_id", t.EventID),
			zap.String("session", t.SessionID))
	}
	s.metrics.ObserveTranscript(outcome)
	resp.Status = outcome
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
