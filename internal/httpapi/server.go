package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/mnemo/internal/config"
	"github.com/antoniostano/mnemo/internal/facade"
	"github.com/antoniostano/mnemo/internal/observability"
	"github.com/antoniostano/mnemo/internal/prefs"
)

type Server struct {
	cfg    config.Config
	facade *facade.Facade
}

func New(cfg config.Config, f *facade.Facade) *Server {
	return &Server{cfg: cfg, facade: f}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/memory/turns", s.handleRecordTurn)
	r.Get("/v1/memory/context", s.handleGetContext)
	r.Post("/v1/memory/preferences/signals", s.handleRecordSignal)
	r.Get("/v1/memory/preferences", s.handleGetPreferences)
	r.Get("/v1/memory/personalization", s.handlePersonalization)
	r.Delete("/v1/memory/conversations/{id}", s.handleForget)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleRecordTurn(w http.ResponseWriter, r *http.Request) {
	var turn facade.Turn
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(turn.ConversationID) == "" {
		respondError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	if err := s.facade.RecordTurn(r.Context(), turn); err != nil {
		respondFacadeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "recorded"})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	budget := s.cfg.CompressionTokenBudget
	if raw := strings.TrimSpace(r.URL.Query().Get("token_budget")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "token_budget must be a positive integer")
			return
		}
		budget = n
	}

	cctx, err := s.facade.GetContext(r.Context(), conversationID, budget)
	if err != nil {
		respondFacadeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cctx)
}

func (s *Server) handleRecordSignal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string       `json:"user_id"`
		Signal prefs.Signal `json:"signal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.facade.RecordPreferenceSignal(r.Context(), req.UserID, req.Signal); err != nil {
		respondFacadeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "recorded"})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	minConfidence := s.cfg.ExposureConfidence
	if raw := strings.TrimSpace(r.URL.Query().Get("min_confidence")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			respondError(w, http.StatusBadRequest, "min_confidence must be in [0, 1]")
			return
		}
		minConfidence = f
	}

	preferences, err := s.facade.GetPreferences(r.Context(), userID, minConfidence)
	if err != nil {
		respondFacadeError(w, err)
		return
	}
	if preferences == nil {
		preferences = []prefs.Preference{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"preferences": preferences})
}

func (s *Server) handlePersonalization(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	hints, err := s.facade.GetPersonalizedContext(r.Context(), userID, r.URL.Query().Get("query"))
	if err != nil {
		respondFacadeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hints)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := s.facade.Forget(r.Context(), conversationID); err != nil {
		respondFacadeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "forgotten"})
}

func respondFacadeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, facade.ErrConversationGone):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, prefs.ErrInvalidSignal):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
