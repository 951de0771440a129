package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/seekreap/engagement-hub/internal/domain/event"
)

func (s *Server) createEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	e, err := s.engagementSvc.Create(r.Context(), sessionID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) getActiveEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	e, err := s.engagementSvc.GetActive(r.Context(), sessionID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if e == nil {
		respondError(w, http.StatusNotFound, "NO_ACTIVE_ENGAGEMENT", "no active engagement found")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) getEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	id, err := uuid.Parse(chi.URLParam(r, "engagementId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagement id")
		return
	}
	e, err := s.engagementSvc.GetByID(r.Context(), sessionID, id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if e == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "engagement not found")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

type completeRequest struct {
	Evidence json.RawMessage `json:"evidence"`
}

func (s *Server) completeEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	e, err := s.engagementSvc.Complete(r.Context(), sessionID, req.Evidence)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) prepareVerification(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "token is required")
		return
	}
	e, err := s.engagementSvc.PrepareVerification(r.Context(), sessionID, req.Token)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) verifyEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	e, err := s.engagementSvc.Verify(r.Context(), sessionID, req.Token)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) forceExpireEngagement(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	expired, err := s.engagementSvc.ForceExpire(r.Context(), sessionID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"expired": expired})
}

func (s *Server) listEngagements(w http.ResponseWriter, r *http.Request) {
	all, err := s.engagementSvc.All(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engagements": all,
		"count":       len(all),
	})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	clientID := middleware.GetReqID(r.Context())
	if clientID == "" {
		clientID = uuid.New().String()
	}
	client := event.NewClient(clientID, &sessionID)
	s.eventHub.Register(client)
	defer s.eventHub.Unregister(clientID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case evt := <-client.EventChan:
			if evt == nil {
				return
			}
			payload, _ := json.Marshal(evt)
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
