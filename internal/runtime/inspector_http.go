package runtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
)

// StartInspectorServer exposes the diagnostics API when the inspector is
// enabled. Handlers are registered on the shared per-port mux and served
// once Start launches the HTTP servers.
func (s *Service) StartInspectorServer() {
	if s.Conf == nil || !s.Conf.InspectorEnabled {
		return
	}

	port := s.Conf.EffectiveInspectorPort()

	s.RegisterHTTPHandler(port, "/api/spans", http.HandlerFunc(s.handleGetSpans))
	s.RegisterHTTPHandler(port, "/api/channels", http.HandlerFunc(s.handleGetChannels))
	s.RegisterHTTPHandler(port, "/api/windows", http.HandlerFunc(s.handleGetWindows))
	s.RegisterHTTPHandler(port, "/api/status", http.HandlerFunc(s.handleGetStatus))
}

func (s *Service) handleGetSpans(w http.ResponseWriter, r *http.Request) {
	if s.writeInspectorHeaders(w, r) {
		return
	}
	s.writeInspectorJSON(w, s.inspector.Snapshot())
}

func (s *Service) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	if s.writeInspectorHeaders(w, r) {
		return
	}
	s.writeInspectorJSON(w, s.dispatcher.Channels())
}

func (s *Service) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	if s.writeInspectorHeaders(w, r) {
		return
	}
	s.writeInspectorJSON(w, s.windows.GetAll())
}

// statusReport is the /api/status body.
type statusReport struct {
	Uptime        string        `json:"uptime"`
	Windows       int           `json:"windows"`
	Channels      int           `json:"channels"`
	ActiveStreams int           `json:"active_streams"`
	PendingCalls  int           `json:"pending_calls"`
	Resource      ResourceUsage `json:"resource"`
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if s.writeInspectorHeaders(w, r) {
		return
	}
	s.writeInspectorJSON(w, statusReport{
		Uptime:        time.Since(s.startedAt).Round(time.Millisecond).String(),
		Windows:       s.windows.Len(),
		Channels:      len(s.dispatcher.Channels()),
		ActiveStreams: s.streams.Active(),
		PendingCalls:  s.pending.Len(),
		Resource:      s.getResourceTracker().Snapshot(),
	})
}

// writeInspectorHeaders sets content type and CORS headers and reports
// whether the request was a preflight already answered.
func (s *Service) writeInspectorHeaders(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.InspectorCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (s *Service) writeInspectorJSON(w http.ResponseWriter, v any) {
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode diagnostics response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks whether the request origin is allowed and
// returns the Access-Control-Allow-Origin value to emit.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.InspectorCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
