// Copyright 2025 The Previewd Authors
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

package webhook

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"golang.org/x/time/rate"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/prpreview/internal/preview"
)

// ErrNoSecret is returned when a server is created without a webhook secret.
var ErrNoSecret = errors.New("webhook secret is required")

const (
	defaultQueueSize  = 64
	defaultRateLimit  = 10
	defaultRateWindow = time.Second
	shutdownTimeout   = 10 * time.Second
)

// Handler processes one pull request event.
type Handler interface {
	Handle(ctx context.Context, ev *preview.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev *preview.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev *preview.Event) error {
	return f(ctx, ev)
}

// Options configure a Server.
type Options struct {
	Addr      string
	Secret    string
	QueueSize int
	// RateLimit events per RateWindow are accepted for each repository.
	RateLimit  int
	RateWindow time.Duration
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Server receives GitHub webhooks and hands pull request events to a single
// worker, so events are handled one at a time in arrival order.
type Server struct {
	addr        string
	secret      []byte
	handler     Handler
	queue       chan job
	rateLimiter *RateLimiter
	metrics     http.Handler
	server      *http.Server
}

type job struct {
	delivery string
	event    *preview.Event
}

// RateLimiter provides per-repository rate limiting
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    int
	window   time.Duration
}

// NewServer creates a webhook server dispatching to h.
func NewServer(opts Options, h Handler) (*Server, error) {
	if opts.Secret == "" {
		return nil, ErrNoSecret
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = defaultRateWindow
	}
	return &Server{
		addr:        opts.Addr,
		secret:      []byte(opts.Secret),
		handler:     h,
		queue:       make(chan job, opts.QueueSize),
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
		metrics:     opts.Metrics,
	}, nil
}

// NewRateLimiter allows limit events per window for each key, refilling
// continuously.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request from the given repository should be allowed
func (rl *RateLimiter) Allow(repo string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[repo]
	if !ok {
		l = rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit)
		rl.limiters[repo] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// Routes returns the HTTP handler of the server.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start serves webhooks and runs the worker until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logger := log.FromContext(ctx)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.runWorker(workerCtx)
	}()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting webhook server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := s.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	stopWorker()
	<-workerDone
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.FromContext(ctx).Info("Shutting down webhook server", "pending", len(s.queue))
	return s.server.Shutdown(ctx)
}

// runWorker handles queued events one at a time until ctx is done.
func (s *Server) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.process(ctx, j)
		}
	}
}

func (s *Server) process(ctx context.Context, j job) {
	logger := log.FromContext(ctx).WithValues("delivery", j.delivery, "repository", j.event.Owner+"/"+j.event.Repo)
	ctx = log.IntoContext(ctx, logger)

	if err := s.handler.Handle(ctx, j.event); err != nil {
		logger.Error(err, "Failed to handle pull request event", "pr", j.event.Number, "action", j.event.Action)
		return
	}
	logger.V(1).Info("Handled pull request event", "pr", j.event.Number, "action", j.event.Action)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleWebhook validates a delivery and queues its pull request event.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := gogithub.ValidatePayload(r, s.secret)
	if err != nil {
		logger.Info("Rejected webhook delivery", "reason", err.Error())
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := gogithub.WebHookType(r)
	if eventType != preview.EventPullRequest {
		logger.V(1).Info("Ignoring non-PR event", "event", eventType)
		w.WriteHeader(http.StatusOK)
		return
	}

	ev, err := preview.ParseEvent(eventType, payload)
	if err != nil {
		logger.Error(err, "Failed to parse pull request event")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	repo := ev.Owner + "/" + ev.Repo
	if !s.rateLimiter.Allow(repo) {
		logger.Info("Rate limit exceeded", "repository", repo)
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	j := job{delivery: gogithub.DeliveryID(r), event: ev}
	select {
	case s.queue <- j:
		logger.V(1).Info("Queued pull request event", "delivery", j.delivery, "pr", ev.Number, "action", ev.Action)
		w.WriteHeader(http.StatusAccepted)
	default:
		logger.Info("Event queue full, rejecting delivery", "delivery", j.delivery, "pr", ev.Number)
		http.Error(w, "Queue full", http.StatusServiceUnavailable)
	}
}
