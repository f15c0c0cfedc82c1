package httpapi

import (
	"net/http"

	"floracore/docs/schema/openapi"
)

// handleOpenAPISpec serves the embedded contract so clients can fetch it
// from the running server.
func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.Spec())
}

func (s *Server) handleNextCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.svc.NextAccessionCode(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type pluginResponse struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies,omitempty"`
	Reports      []string `json:"reports,omitempty"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	installed := s.svc.RegisteredPlugins()
	items := make([]pluginResponse, 0, len(installed))
	for _, plugin := range installed {
		entry := pluginResponse{
			Name:         plugin.Name,
			Version:      plugin.Version,
			Dependencies: plugin.Dependencies,
		}
		for _, descriptor := range plugin.Reports {
			entry.Reports = append(entry.Reports, descriptor.Key)
		}
		items = append(items, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
