package host

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tintoy/confluence-docfx-import/pkg/health"
)

// PluginStatus describes a loaded plugin
type PluginStatus struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Health      string `json:"health"`
}

func (h *Host) registerCoreRoutes() {
	h.router.HandleFunc("/plugins", h.handlePlugins).Methods(http.MethodGet)
	h.router.HandleFunc("/services", h.handleServices).Methods(http.MethodGet)
	h.router.HandleFunc("/services/{name}", h.handleService).Methods(http.MethodGet)

	healthRouter := health.NewHandler(h.monitor, h.logger).Router()
	h.router.PathPrefix("/health").Handler(healthRouter)

	h.router.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (h *Host) handlePlugins(w http.ResponseWriter, r *http.Request) {
	plugins := h.plugins.List()
	statuses := make([]PluginStatus, 0, len(plugins))
	for _, p := range plugins {
		status := PluginStatus{
			Name:        p.Name(),
			Version:     p.Version(),
			Description: p.Description(),
			Health:      health.Unknown.String(),
		}
		if ph, ok := h.monitor.Report(p.Name()); ok {
			status.Health = ph.Status.String()
		}
		statuses = append(statuses, status)
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

func (h *Host) handleServices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.services.List())
}

func (h *Host) handleService(w http.ResponseWriter, r *http.Request) {
	info, ok := h.services.Info(mux.Vars(r)["name"])
	if !ok {
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Host) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
