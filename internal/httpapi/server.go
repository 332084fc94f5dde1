package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/handoff/internal/config"
	"github.com/ent0n29/handoff/internal/gateway"
	"github.com/ent0n29/handoff/internal/journal"
	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/protocol"
	"github.com/ent0n29/handoff/internal/routing"
)

const maxEventBody = 1 << 20

type Server struct {
	cfg       config.Config
	router    *routing.Router
	hub       *gateway.Hub
	journal   journal.Store
	metrics   *observability.Metrics
	log       logrus.FieldLogger
	transport string
	upgrader  websocket.Upgrader
}

// New builds the HTTP surface. transportMode names the outbound transport
// for health output.
func New(cfg config.Config, router *routing.Router, hub *gateway.Hub, journalStore journal.Store, metrics *observability.Metrics, log logrus.FieldLogger, transportMode string) *Server {
	return &Server{
		cfg:       cfg,
		router:    router,
		hub:       hub,
		journal:   journalStore,
		metrics:   metrics,
		log:       log,
		transport: transportMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Adapters are not browsers and usually omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/events", s.requireToken(s.handleEvent))
	r.Get("/v1/sessions", s.requireToken(s.handleListSessions))
	r.Get("/v1/sessions/{user_id}/journal", s.requireToken(s.handleJournal))
	r.Post("/v1/teardown", s.requireToken(s.handleTeardown))
	r.Get("/v1/gateway/ws", s.requireToken(s.handleGatewayWS))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"transport":         s.transport,
		"adapter_connected": s.hub != nil && s.hub.Connected(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"transport": s.transport,
		"operators": s.router.Roster().Len(),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	var ev platform.Event
	if err := decodeJSON(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(ev.SenderID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_event", "missing sender_id")
		return
	}
	s.metrics.ObserveGatewayMessage("inbound", "http_event")

	res := s.router.HandleEvent(r.Context(), ev)
	respondJSON(w, http.StatusOK, protocol.EventResult{
		Type:    protocol.TypeEventResult,
		EventID: ev.ID,
		Handled: res.Handled,
	})
}

type waitingView struct {
	Rank           int       `json:"rank"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name,omitempty"`
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

type connectedView struct {
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name,omitempty"`
	OperatorID     string    `json:"operator_id"`
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

type sessionsResponse struct {
	Waiting   []waitingView   `json:"waiting"`
	Connected []connectedView `json:"connected"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snap := s.router.Snapshot()
	resp := sessionsResponse{
		Waiting:   make([]waitingView, 0, len(snap.Waiting)),
		Connected: make([]connectedView, 0, len(snap.Connected)),
	}
	for _, e := range snap.Waiting {
		resp.Waiting = append(resp.Waiting, waitingView{
			Rank:           e.Rank,
			UserID:         e.Session.UserID,
			UserName:       e.Session.UserName,
			SessionID:      e.Session.ID,
			StartedAt:      e.Session.StartedAt,
			ElapsedSeconds: int64(e.Session.Elapsed(snap.Now) / time.Second),
		})
	}
	for _, c := range snap.Connected {
		resp.Connected = append(resp.Connected, connectedView{
			UserID:         c.UserID,
			UserName:       c.UserName,
			OperatorID:     c.OperatorID,
			SessionID:      c.ID,
			StartedAt:      c.StartedAt,
			ElapsedSeconds: int64(c.Elapsed(snap.Now) / time.Second),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.journal == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "journal not configured")
		return
	}
	entries, err := s.journal.Recent(r.Context(), userID, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("httpapi: journal lookup failed")
		respondError(w, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	removed := s.router.Teardown(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleGatewayWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "gateway not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.hub.Serve(r.Context(), conn, s.router)
}

// requireToken checks the bearer token when GATEWAY_TOKEN is set.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := strings.TrimSpace(s.cfg.GatewayToken)
		if want == "" {
			next(w, r)
			return
		}
		got := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
