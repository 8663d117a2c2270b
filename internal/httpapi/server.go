package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/engine"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/store/sqlite"
	"tonstation_bot/internal/ws"
)

type Options struct {
	Cfg    config.Config
	Bus    *logbus.Bus
	Store  *sqlite.Store
	Engine *engine.Engine
}

// Server exposes read-only status of the farming loop plus the loop
// settings. Store may be nil when storage is disabled.
type Server struct {
	cfg    config.Config
	bus    *logbus.Bus
	store  *sqlite.Store
	engine *engine.Engine
	ws     *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:    opts.Cfg,
		bus:    opts.Bus,
		store:  opts.Store,
		engine: opts.Engine,
		ws:     ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/state", s.handleState)
	api.HandleFunc("/api/v1/passes", s.handlePasses)
	api.HandleFunc("/api/v1/passes/", s.handlePass)
	api.HandleFunc("/api/v1/settings/loop", s.handleLoopSettings)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.State()})
}

func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "storage disabled"})
		return
	}
	limit, err := parseInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	passes, err := s.store.ListPasses(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": passes})
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "storage disabled"})
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/passes/"), "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "pass id is required"})
		return
	}
	pass, ok, err := s.store.GetPass(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "pass not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": pass})
}

func (s *Server) handleLoopSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": s.engine.LoopSettings()})
	case http.MethodPost, http.MethodPut:
		// 只更新请求里出现的字段
		var body struct {
			AccountPauseMs   *int `json:"accountPauseMs,omitempty"`
			CycleWaitMinutes *int `json:"cycleWaitMinutes,omitempty"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		next := s.engine.LoopSettings()
		if body.AccountPauseMs != nil {
			next.AccountPauseMs = *body.AccountPauseMs
		}
		if body.CycleWaitMinutes != nil {
			next.CycleWaitMinutes = *body.CycleWaitMinutes
		}
		next = s.engine.SetLoopSettings(next)
		if s.store != nil {
			if _, err := s.store.UpsertLoopSettings(r.Context(), next); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
		}
		if s.bus != nil {
			s.bus.Info("loop settings updated", map[string]any{
				"accountPauseMs":   next.AccountPauseMs,
				"cycleWaitMinutes": next.CycleWaitMinutes,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": next})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func parseInt(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	return n, nil
}
