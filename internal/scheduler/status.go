package scheduler

import (
	"net/http"

	"github.com/DLR-TS/sumoldl/internal/httputil"
	"github.com/DLR-TS/sumoldl/internal/version"
)

// Manager owns the detector and simulation loops and exposes their
// combined status over HTTP, for a deployment's health checks.
type Manager struct {
	Detector *Loop
	Simula   *Loop
}

// StatusHandler returns an http.HandlerFunc reporting both loops' status
// as JSON, for use with a *http.ServeMux.
func (m *Manager) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		resp := map[string]interface{}{
			"version": version.Version,
			"git_sha": version.GitSHA,
		}
		if m.Detector != nil {
			resp["detector"] = m.Detector.CurrentStatus()
		}
		if m.Simula != nil {
			resp["simulation"] = m.Simula.CurrentStatus()
		}
		httputil.WriteJSONOK(w, resp)
	}
}
