// Package api serves the town over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/metrics"
	"github.com/talgya/ai-town/internal/world"
)

const (
	maxWSConns         = 16
	defaultMemoryLimit = 20
	maxListLimit       = 500
)

// ArchiveReader serves events that have left the in-memory history.
type ArchiveReader interface {
	RecentEvents(ctx context.Context, limit int) ([]events.Event, error)
}

// Server serves the town state over HTTP.
type Server struct {
	World       *engine.World
	Eng         *engine.Engine
	Metrics     *metrics.Collector // optional
	Archive     ArchiveReader      // optional
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	CORSOrigins []string
	Limiter     *RateLimiter // optional

	wsConns atomic.Int32
	httpSrv *http.Server
}

// Handler returns the full routing tree with middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/status", s.handleStatus)
	api.HandleFunc("GET /api/v1/agents", s.handleAgents)
	api.HandleFunc("GET /api/v1/agent/{id}", s.handleAgent)
	api.HandleFunc("GET /api/v1/events", s.handleEvents)
	api.HandleFunc("GET /api/v1/stats", s.handleStats)
	api.HandleFunc("GET /api/v1/map", s.handleMap)
	api.HandleFunc("GET /api/v1/path", s.handlePath)
	api.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	var public http.Handler = api
	if s.Limiter != nil {
		public = s.Limiter.Middleware(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", public)
	mux.HandleFunc("GET /api/v1/ws", s.handleWS)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	return corsMiddleware(s.CORSOrigins, s.instrument(mux))
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.HTTPRequest(routeLabel(r.URL.Path), rec.status, time.Since(start))
	})
}

// routeLabel folds per-agent paths so metric cardinality stays bounded.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/v1/agent/") {
		return "/api/v1/agent/{id}"
	}
	return path
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		} else if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.World.Snapshot()
	writeJSON(w, map[string]any{
		"name":                "ai-town",
		"tick":                snap.Tick,
		"time":                snap.Time,
		"clock":               snap.Clock,
		"speed":               s.Eng.Speed(),
		"running":             s.Eng.Running(),
		"agents":              len(snap.Agents),
		"live_events":         len(snap.Events),
		"total_interactions":  snap.Stats.TotalInteractions,
		"total_movements":     snap.Stats.TotalMovements,
		"total_conversations": snap.Stats.TotalConversations,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.Snapshot().Agents)
}

type agentDetail struct {
	agents.Status
	Plan     *agents.PlanView `json:"plan,omitempty"`
	Memories []memory.Memory  `json:"recent_memories"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	a := s.World.Agent(r.PathValue("id"))
	if a == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	limit, err := intParam(r, "limit", defaultMemoryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d := agentDetail{
		Status:   a.Status(),
		Memories: a.Memory().RecentMemories(24, limit),
	}
	if plan, ok := a.Planner().CurrentPlan(); ok {
		d.Plan = &plan
	}
	writeJSON(w, d)
}

// handleEvents returns live events; ?history=N adds recent history and
// ?archived=N reads from the archive.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"live": s.World.Snapshot().Events}

	history, err := intParam(r, "history", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if history > 0 {
		resp["history"] = s.World.History(history)
	}

	archived, err := intParam(r, "archived", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if archived > 0 {
		if s.Archive == nil {
			http.Error(w, "event archive not configured", http.StatusNotFound)
			return
		}
		evs, err := s.Archive.RecentEvents(r.Context(), archived)
		if err != nil {
			slog.Error("archive read failed", "error", err)
			http.Error(w, "archive unavailable", http.StatusInternalServerError)
			return
		}
		resp["archived"] = evs
	}
	writeJSON(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.Stats())
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.World.Snapshot().Map)
}

// handlePath returns the A* route for ?from=x,y&to=x,y.
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	from, err := parseCoord(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "from: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseCoord(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
		return
	}

	for _, c := range []world.Coord{from, to} {
		if !s.World.Map.InBounds(c.X, c.Y) {
			http.Error(w, fmt.Sprintf("%d,%d is off the map", c.X, c.Y), http.StatusBadRequest)
			return
		}
	}

	path := s.World.Map.SearchPath(from, to)
	if path == nil {
		path = []world.Coord{}
	}
	writeJSON(w, map[string]any{
		"from":  from,
		"to":    to,
		"found": len(path) > 0,
		"steps": max(len(path)-1, 0),
		"path":  path,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func parseCoord(v string) (world.Coord, error) {
	xs, ys, ok := strings.Cut(v, ",")
	if !ok {
		return world.Coord{}, fmt.Errorf("want x,y, got %q", v)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return world.Coord{}, fmt.Errorf("bad x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return world.Coord{}, fmt.Errorf("bad y: %w", err)
	}
	return world.Coord{X: x, Y: y}, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return min(n, maxListLimit), nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
