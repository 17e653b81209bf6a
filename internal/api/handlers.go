package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/registry"
)

// handleJobs routes the /api/v1/jobs/ subtree:
//
//	GET  /api/v1/jobs/{job}/slots
//	POST /api/v1/jobs/{job}/slots/{slot}/photos
//	DELETE /api/v1/jobs/{job}/slots/{slot}/photos/{photo}
//	POST /api/v1/jobs/{job}/slots/{slot}/photos/{photo}/retry
//	PUT  /api/v1/jobs/{job}/slots/{slot}/serial-number
//	PUT  /api/v1/jobs/{job}/slots/{slot}/measurement
//	POST /api/v1/jobs/{job}/reconcile
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	jobID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "slots" && r.Method == http.MethodGet:
		s.listSlots(w, r, jobID)
	case len(parts) == 2 && parts[1] == "reconcile" && r.Method == http.MethodPost:
		s.reconcileJob(w, r, jobID)
	case len(parts) == 4 && parts[1] == "slots" && parts[3] == "photos" && r.Method == http.MethodPost:
		s.addPhoto(w, r, jobID, parts[2])
	case len(parts) == 5 && parts[1] == "slots" && parts[3] == "photos" && r.Method == http.MethodDelete:
		s.removePhoto(w, r, jobID, parts[2], parts[4])
	case len(parts) == 6 && parts[1] == "slots" && parts[3] == "photos" && parts[5] == "retry" && r.Method == http.MethodPost:
		s.retryPhoto(w, r, jobID, parts[2], parts[4])
	case len(parts) == 4 && parts[1] == "slots" && parts[3] == "serial-number" && r.Method == http.MethodPut:
		s.setSerialNumber(w, r, jobID, parts[2])
	case len(parts) == 4 && parts[1] == "slots" && parts[3] == "measurement" && r.Method == http.MethodPut:
		s.setMeasurement(w, r, jobID, parts[2])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request, jobID string) {
	slots, err := s.registry.OpenJob(r.Context(), jobID)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "slots": slots})
}

func (s *Server) addPhoto(w http.ResponseWriter, r *http.Request, jobID, slotID string) {
	var req struct {
		Payload   []byte `json:"payload"`
		Thumbnail []byte `json:"thumbnail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.registry.AddCandidate(r.Context(), jobID, slotID, req.Payload, req.Thumbnail)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) removePhoto(w http.ResponseWriter, r *http.Request, jobID, slotID, photoID string) {
	if err := s.registry.RemoveCandidate(r.Context(), jobID, slotID, photoID); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) retryPhoto(w http.ResponseWriter, r *http.Request, jobID, slotID, photoID string) {
	if err := s.registry.RetryCandidate(r.Context(), jobID, slotID, photoID); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retrying"})
}

func (s *Server) setSerialNumber(w http.ResponseWriter, r *http.Request, jobID, slotID string) {
	var req struct {
		SerialNumber string `json:"serial_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SerialNumber) == "" {
		writeError(w, http.StatusBadRequest, "serial_number is required")
		return
	}
	if err := s.registry.SetSerialNumber(r.Context(), jobID, slotID, req.SerialNumber); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) setMeasurement(w http.ResponseWriter, r *http.Request, jobID, slotID string) {
	var req struct {
		CableMeters float64 `json:"cable_meters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CableMeters < 0 {
		writeError(w, http.StatusBadRequest, "cable_meters must not be negative")
		return
	}
	if err := s.registry.SetMeasurement(r.Context(), jobID, slotID, req.CableMeters); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reconcileJob(w http.ResponseWriter, r *http.Request, jobID string) {
	var req struct {
		Slots []models.DocumentationSlot `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.registry.ApplyServerState(r.Context(), jobID, req.Slots); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	slots, err := s.registry.Slots(jobID)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "slots": slots})
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownJob),
		errors.Is(err, registry.ErrUnknownSlot),
		errors.Is(err, registry.ErrUnknownEntry):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrDurableEntry),
		errors.Is(err, registry.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrPayloadRequired),
		errors.Is(err, registry.ErrUndecodable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("registry operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
