package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fileevent-populator/internal/store"
)

// APIError represents an error response
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// EventList is the response of GET /api/events
type EventList struct {
	MarketDate     string            `json:"market_date"`
	DataFileTypeID int               `json:"data_file_type_id,omitempty"`
	Count          int               `json:"count"`
	Events         []store.FileEvent `json:"events"`
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error().Err(err).Msg("Error encoding JSON response")
		}
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, APIError{Error: http.StatusText(status), Message: message})
}

// handleHealth reports whether the event store is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"store":  err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleListEvents returns the events of one market date
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		s.respondError(w, http.StatusBadRequest, "date is required")
		return
	}

	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	filter := store.EventFilter{MarketDate: date}
	if typeStr := r.URL.Query().Get("type_id"); typeStr != "" {
		typeID, err := strconv.Atoi(typeStr)
		if err != nil || typeID <= 0 {
			s.respondError(w, http.StatusBadRequest, "Invalid type_id")
			return
		}
		filter.DataFileTypeID = typeID
	}

	events, err := s.gateway.ListEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Str("date", dateStr).Msg("Error listing events")
		s.respondError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	if events == nil {
		events = []store.FileEvent{}
	}

	s.respondJSON(w, http.StatusOK, EventList{
		MarketDate:     dateStr,
		DataFileTypeID: filter.DataFileTypeID,
		Count:          len(events),
		Events:         events,
	})
}
