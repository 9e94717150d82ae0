package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radarhq/radar/internal/ident"
	"github.com/radarhq/radar/internal/plugin"
)

// API is the server's HTTP sidecar: Prometheus metrics plus read-only
// status endpoints over the loaded definitions and the live sessions.
type API struct {
	server  *Server
	plugins *plugin.Registry
	logger  *slog.Logger
}

// NewAPI builds the sidecar for a running server.
func NewAPI(s *Server, plugins *plugin.Registry, logger *slog.Logger) *API {
	return &API{server: s, plugins: plugins, logger: logger}
}

// Router wires the sidecar routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/api/v1/checks", a.handleChecks).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/contacts", a.handleContacts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/plugins", a.handlePlugins).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/clients", a.handleClients).Methods(http.MethodGet)
	return r
}

// Serve blocks on the sidecar listener.
func (a *API) Serve(addr string) error {
	a.logger.Info("status API listening", "address", addr)
	return http.ListenAndServe(addr, a.Router())
}

func (a *API) handleChecks(w http.ResponseWriter, _ *http.Request) {
	defs := a.server.Definitions()
	out := make([]ident.Dict, 0, len(defs.Checks)+len(defs.Groups))
	for _, c := range defs.Checks {
		out = append(out, c.ToDict())
	}
	for _, g := range defs.Groups {
		out = append(out, g.ToDict())
	}
	a.writeJSON(w, out)
}

func (a *API) handleContacts(w http.ResponseWriter, _ *http.Request) {
	defs := a.server.Definitions()
	out := make([]ident.Dict, 0, len(defs.Contacts))
	for _, c := range defs.Contacts {
		out = append(out, c.ToDict())
	}
	a.writeJSON(w, out)
}

func (a *API) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.plugins.List())
}

func (a *API) handleClients(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.server.Sessions())
}

func (a *API) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("can't encode API response", "error", err)
	}
}
