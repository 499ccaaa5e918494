package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// Summary counts plugins by status
type Summary struct {
	TotalPlugins     int `json:"totalPlugins"`
	HealthyPlugins   int `json:"healthyPlugins"`
	UnhealthyPlugins int `json:"unhealthyPlugins"`
	UnknownPlugins   int `json:"unknownPlugins"`
}

func summarize(reports []Report) Summary {
	s := Summary{TotalPlugins: len(reports)}
	for _, r := range reports {
		switch r.Status {
		case Healthy:
			s.HealthyPlugins++
		case Unhealthy:
			s.UnhealthyPlugins++
		default:
			s.UnknownPlugins++
		}
	}
	return s
}

// Overview is the body of GET /health
type Overview struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Plugins   map[string]Report `json:"plugins"`
	Summary   Summary           `json:"summary"`
}

// Handler serves a Monitor's state over HTTP:
//
//	GET /health            overview, 503 while any plugin is unhealthy
//	GET /health/liveness   always 200
//	GET /health/readiness  200 only when every plugin is healthy
//	GET /health/:name      one plugin's report
type Handler struct {
	monitor *Monitor
	logger  *log.Logger
}

func NewHandler(monitor *Monitor, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{monitor: monitor, logger: logger}
}

// Router mounts the endpoints at their absolute /health paths
func (h *Handler) Router() *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", h.overview)
	// liveness and readiness take the same segment as plugin names
	router.GET("/health/:name", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		switch name := ps.ByName("name"); name {
		case "liveness":
			h.respond(w, http.StatusOK, map[string]interface{}{"status": "alive", "timestamp": time.Now()})
		case "readiness":
			h.readiness(w)
		default:
			h.plugin(w, name)
		}
	})
	return router
}

func (h *Handler) overview(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	reports := h.monitor.Reports()
	body := Overview{
		Status:    "healthy",
		Timestamp: time.Now(),
		Plugins:   make(map[string]Report, len(reports)),
		Summary:   summarize(reports),
	}
	for _, r := range reports {
		body.Plugins[r.Plugin] = r
	}

	code := http.StatusOK
	switch {
	case body.Summary.UnhealthyPlugins > 0:
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	case body.Summary.UnknownPlugins > 0:
		body.Status = "starting"
	}
	h.respond(w, code, body)
}

func (h *Handler) readiness(w http.ResponseWriter) {
	if h.monitor.Healthy() {
		h.respond(w, http.StatusOK, map[string]interface{}{
			"status": "ready", "ready": true, "timestamp": time.Now(),
		})
		return
	}
	h.respond(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status":    "not ready",
		"ready":     false,
		"unhealthy": h.monitor.Failing(),
		"timestamp": time.Now(),
	})
}

func (h *Handler) plugin(w http.ResponseWriter, name string) {
	report, ok := h.monitor.Report(name)
	if !ok {
		http.Error(w, "Plugin not found", http.StatusNotFound)
		return
	}
	code := http.StatusOK
	if report.Status == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	h.respond(w, code, map[string]interface{}{"plugin": report, "timestamp": time.Now()})
}

func (h *Handler) respond(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("Failed to write health response")
	}
}
