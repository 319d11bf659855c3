// Package httpapi is SMS's optional debug inspector: a small chi-routed
// HTTP+WebSocket server exposing live engine state and Prometheus metrics
// for development tooling. It is not part of the engine's realtime
// contract (spec's out-of-scope "thin CLI/binding surfaces") — nothing
// here runs on the audio thread, and TurnHandle works identically whether
// or not a Server is attached. Grounded on the teacher's
// internal/api/server.go + router.go + ratelimit.go + websocket.go.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineInterface is the minimal read surface the inspector needs. Kept
// small and interface-typed so tests can supply a fake engine instead of
// spinning up the full audio pipeline, the same dependency-injection shape
// as the teacher's api.EngineInterface.
type EngineInterface interface {
	LogicalNow() float64
	ActiveSourceCount() int
}

// Snapshot is the JSON payload served at /api/state and broadcast over the
// WebSocket feed.
type Snapshot struct {
	LogicalNow   float64 `json:"logical_now"`
	ActiveSources int    `json:"active_sources"`
}

// Server bundles the router, WebSocket hub and rate limiter behind a
// Start/Stop lifecycle matching the teacher's api.Server. Construction
// starts the rate limiter's cleanup goroutine; the hub and broadcast
// goroutines start in Start.
type Server struct {
	engine EngineInterface
	router *chi.Mux
	hub    *Hub
	limiter *IPRateLimiter
	stop   chan struct{}
}

// NewServer builds a Server around engine. Only the rate limiter's cleanup
// goroutine starts here; everything else waits for Start.
func NewServer(engine EngineInterface) *Server {
	s := &Server{
		engine:  engine,
		hub:     NewHub(),
		limiter: NewIPRateLimiter(DefaultRateLimitConfig),
		stop:    make(chan struct{}),
	}
	s.router = s.newRouter()
	return s
}

// Router returns the HTTP handler, for use with httptest in tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   AllowedOrigins,
		AllowedMethods:   []string{"GET"},
		AllowCredentials: false,
	}))
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/state", s.handleState)
	r.Get("/ws", s.hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := Snapshot{LogicalNow: s.engine.LogicalNow(), ActiveSources: s.engine.ActiveSourceCount()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Start begins serving addr and the periodic WebSocket broadcast loop; it
// blocks until the listener errors. Stop does not close the listener.
func (s *Server) Start(addr string) error {
	go s.hub.Run(s.stop)
	go s.broadcastLoop()
	log.Printf("📊 smsengine debug inspector on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Stop ends the broadcast loop and rate limiter cleanup goroutine.
func (s *Server) Stop() {
	close(s.stop)
	s.limiter.Stop()
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.Broadcast(Snapshot{LogicalNow: s.engine.LogicalNow(), ActiveSources: s.engine.ActiveSourceCount()})
		}
	}
}
