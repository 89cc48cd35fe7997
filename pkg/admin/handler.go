// Package admin serves the operator API over the live registries: listing
// and managing clients, and inspecting exports.
//
// Endpoints:
//   - GET    /admin/clients         - all clients, ascending address order
//   - GET    /admin/clients/{addr}  - one client
//   - POST   /admin/clients/{addr}  - register a client (201 created, 200 existing)
//   - DELETE /admin/clients/{addr}  - remove a client (204, 404 if unknown)
//   - GET    /admin/exports         - all exports, ascending id order
//   - GET    /admin/exports/{id}    - one export with its IO counters
//   - GET    /admin/summary         - registry totals
//   - GET    /health                - liveness
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/registry"
	"github.com/marmos91/dittoreg/pkg/stats"
)

// Handler routes admin requests to a stats.Collector.
type Handler struct {
	collector *stats.Collector
	mux       *http.ServeMux
}

// NewHandler creates the admin API over collector.
func NewHandler(collector *stats.Collector) *Handler {
	if collector == nil {
		panic("admin: collector cannot be nil")
	}

	h := &Handler{collector: collector, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /admin/clients", h.listClients)
	h.mux.HandleFunc("GET /admin/clients/{addr}", h.getClient)
	h.mux.HandleFunc("POST /admin/clients/{addr}", h.addClient)
	h.mux.HandleFunc("DELETE /admin/clients/{addr}", h.removeClient)
	h.mux.HandleFunc("GET /admin/exports", h.listExports)
	h.mux.HandleFunc("GET /admin/exports/{id}", h.getExport)
	h.mux.HandleFunc("GET /admin/summary", h.summary)
	h.mux.HandleFunc("GET /health", h.health)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("admin: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// parseAddr reads the {addr} path value. Ports are not accepted.
func parseAddr(r *http.Request) (netip.Addr, error) {
	return netip.ParseAddr(r.PathValue("addr"))
}

func parseExportID(r *http.Request) (registry.ExportID, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 16)
	if err != nil {
		return 0, err
	}
	return registry.ExportID(id), nil
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients := h.collector.ClientSnapshots()
	if clients == nil {
		clients = []stats.ClientSnapshot{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client address")
		return
	}
	snap, ok := h.collector.Client(addr)
	if !ok {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) addClient(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client address")
		return
	}

	created, err := h.collector.AddClient(addr)
	switch {
	case errors.Is(err, stats.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("admin: add client %s: %v", addr, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger.Info("admin: added client %s", addr)
	}
	snap, _ := h.collector.Client(addr)
	writeJSON(w, status, snap)
}

func (h *Handler) removeClient(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client address")
		return
	}

	removed, err := h.collector.RemoveClient(addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	logger.Info("admin: removed client %s", addr)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	exports := h.collector.ExportSnapshots()
	if exports == nil {
		exports = []stats.ExportSnapshot{}
	}
	writeJSON(w, http.StatusOK, exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	id, err := parseExportID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid export id")
		return
	}
	snap, ok := h.collector.Export(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type summaryResponse struct {
	stats.Summary
	Uptime string `json:"uptime"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, summaryResponse{
		Summary: h.collector.Summary(),
		Uptime:  h.collector.Uptime().Truncate(time.Second).String(),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
