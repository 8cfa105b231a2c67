package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
)

// DefaultWebUIPort serves the status API when no port is configured.
const DefaultWebUIPort = 8081

// StartWebUIServer registers the status API: /api/handlers, /api/stages and
// /healthz.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}
	port := s.Conf.WebUIPort
	if port == 0 {
		port = DefaultWebUIPort
	}
	s.RegisterHTTPHandler(port, "/api/handlers", s.cors(http.HandlerFunc(s.handleGetHandlers)))
	s.RegisterHTTPHandler(port, "/api/stages", s.cors(http.HandlerFunc(s.handleGetStages)))
	s.RegisterHTTPHandler(port, "/healthz", s.cors(http.HandlerFunc(s.handleHealth)))
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, _ *http.Request) {
	handlers := s.Handlers()
	out := make([]HandlerSnapshot, 0, len(handlers))
	for _, h := range handlers {
		snap := h.Stats.Snapshot()
		snap.Name = h.Name
		snap.ConsumeQueue = h.ConsumeQueue
		out = append(out, snap)
	}
	s.writeJSON(w, out)
}

func (s *Service) handleGetStages(w http.ResponseWriter, _ *http.Request) {
	var snap metrics.StageSnapshot
	if s.stages != nil {
		snap = s.stages.Snapshot()
	}
	s.writeJSON(w, snap)
}

type healthResponse struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
	Handlers  int    `json:"handlers"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, healthResponse{
		Status:    "ok",
		Transport: s.capabilities.Name,
		Handlers:  len(s.Handlers()),
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, body any) {
	data, err := jsoncodec.Marshal(body)
	if err != nil {
		s.Logger.Error("Failed to encode status response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// cors sets CORS headers for allowed origins, answers preflight requests and
// rejects anything but GET.
func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for the
// request origin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
