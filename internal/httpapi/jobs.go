package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"

	"floracore/internal/jobs"
)

type submitJobRequest struct {
	Kind        string         `json:"kind"`
	Parameters  map[string]any `json:"parameters"`
	Payload     string         `json:"payload"`
	RequestedBy string         `json:"requested_by"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req submitJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	record, err := s.worker.Submit(r.Context(), jobs.Request{
		Kind:        jobs.Kind(req.Kind),
		Parameters:  req.Parameters,
		Payload:     []byte(req.Payload),
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.worker.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, ok := s.worker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleJobArtifact streams one artifact of a finished job. With more
// than one artifact the label query parameter selects which; otherwise
// the first is served.
func (s *Server) handleJobArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, ok := s.worker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	if len(record.Artifacts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s has no artifacts", id))
		return
	}

	artifact := record.Artifacts[0]
	if label := r.URL.Query().Get("label"); label != "" {
		found := false
		for _, candidate := range record.Artifacts {
			if candidate.Label == label {
				artifact = candidate
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %s has no %q artifact", id, label))
			return
		}
	}
	s.streamBlob(w, r, artifact.Key, artifact.ContentType)
}

// handleImportFailures serves the failure dump of an import job as CSV.
func (s *Server) handleImportFailures(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, ok := s.worker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	if record.Kind != jobs.KindImport {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job %s is not an import", id))
		return
	}
	for _, artifact := range record.Artifacts {
		if artifact.Label == "failures" {
			s.streamBlob(w, r, artifact.Key, "text/csv")
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("no failure dump for job %s", id))
}

func (s *Server) streamBlob(w http.ResponseWriter, r *http.Request, key, contentType string) {
	info, rc, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("artifact %s not found", key))
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	_, _ = io.Copy(w, rc)
}
