// Copyright 2026 the pwsafe-matrix-go authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpadmin is the optional admin HTTP endpoint spec.md §6
// describes: /health, /diff, /stop, gated by an exact-match bearer token.
// Grounded on the teacher's httpserver packages for the listen/serve shape
// and on `lib/httpmiddlewares/bearertokenauth.go` for the authentication
// middleware, translated from the teacher's openapi-generated chi router
// to a plain net/http mux (this module carries no generated API, so there's
// nothing for chi itself to dispatch) wrapped in the teacher's go-chi/cors.
package httpadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/cors"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/communicator"
)

// ErrWeakToken is returned by NewServer when the configured bearer token is
// shorter than spec.md §6's 16-character floor.
var ErrWeakToken = errors.New("httpadmin: authorization token must be at least 16 characters")

// MinTokenLength is the floor spec.md §6 names for the startup-provided
// bearer.
const MinTokenLength = 16

// Server is the admin endpoint. Diffs posted to /diff are handed to a
// communicator.Producer exactly like any other local producer, so their
// durability is observed the same way every other local edit's is: through
// the Sync barrier, not through the HTTP response body.
type Server struct {
	addr     string
	token    string
	producer *communicator.Producer
	logger   *slog.Logger
	ready    bool

	httpSrv  *http.Server
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option { return func(s *Server) { s.logger = logger } }

// WithReadySignal requests the readiness-byte-then-redirect-stdout
// behavior spec.md §6 names, run once the listener is bound.
func WithReadySignal() Option { return func(s *Server) { s.ready = true } }

// NewServer returns a Server bound to addr once Run is called, authenticating
// every request against token.
func NewServer(addr, token string, producer *communicator.Producer, opts ...Option) (*Server, error) {
	if len(token) < MinTokenLength {
		return nil, ErrWeakToken
	}
	s := &Server{
		addr:     addr,
		token:    token,
		producer: producer,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run binds the listener, optionally signals readiness, and serves until
// ctx is cancelled or a client POSTs /stop. It returns nil on a graceful
// stop and a non-nil error if the listener fails or shutdown does not
// complete within its timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpadmin: listen on %s: %w", s.addr, err)
	}

	if s.ready {
		if err := signalReady(); err != nil {
			s.logger.WarnContext(ctx, "readiness signal failed", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /diff", s.handleDiff)
	mux.HandleFunc("POST /stop", s.handleStop)

	corsHandler := cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	//nolint:exhaustruct // no need to populate every field of the stdlib struct
	s.httpSrv = &http.Server{
		Handler:           corsHandler(s.authenticate(mux)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case <-s.stopCh:
		return s.shutdown()
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpadmin: serve: %w", err)
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpadmin: shutdown: %w", err)
	}
	return nil
}

// authenticate rejects any request whose Authorization header does not
// exactly match the configured token, matching the original's
// `header.get("Authorization") == Some(token.as_bytes())` comparison (not a
// "Bearer " prefix scheme, despite the endpoint's name).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct{}{})
}

// handleDiff hands the request body to the Communicator and awaits its
// durability exactly as any other producer would, before returning 200.
// The response body carries no information about what was applied.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := s.producer.SendDiff(r.Context(), body); err != nil {
		s.logger.ErrorContext(r.Context(), "diff endpoint: send failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.logger.InfoContext(r.Context(), "stop endpoint called")
	w.WriteHeader(http.StatusOK)
	s.stopOnce.Do(func() { close(s.stopCh) })
}
