package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appEngagement "github.com/seekreap/engagement-hub/internal/application/engagement"
	domainEngagement "github.com/seekreap/engagement-hub/internal/domain/engagement"
	"github.com/seekreap/engagement-hub/internal/infrastructure/events"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engagementSvc *appEngagement.Service
	eventHub      *events.Hub
	logger        zerolog.Logger
}

func NewServer(engagementSvc *appEngagement.Service, eventHub *events.Hub, logger zerolog.Logger) *Server {
	return &Server{
		engagementSvc: engagementSvc,
		eventHub:      eventHub,
		logger:        logger.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Post("/engagements", s.createEngagement)
			r.Get("/engagements/active", s.getActiveEngagement)
			r.Get("/engagements/{engagementId}", s.getEngagement)
			r.Post("/engagements/complete", s.completeEngagement)
			r.Post("/engagements/verify/prepare", s.prepareVerification)
			r.Post("/engagements/verify", s.verifyEngagement)
			r.Post("/engagements/expire", s.forceExpireEngagement)
			r.Get("/events", s.streamEvents)
		})

		r.Get("/engagements", s.listEngagements)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps a typed engagement error onto its status hint.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var domainErr *domainEngagement.Error
	if errors.As(err, &domainErr) {
		respondError(w, domainErr.Status, domainErr.Code, domainErr.Message)
		return
	}
	s.logger.Error().Err(err).Msg("internal error")
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
