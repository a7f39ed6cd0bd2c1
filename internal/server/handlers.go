package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/lookup"
	"github.com/jonathan/job-catalog/internal/server/middleware"
	"github.com/jonathan/job-catalog/internal/syncer"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// SyncResponse is the body of a manual sync.
type SyncResponse struct {
	Success   bool   `json:"success"`
	RunID     string `json:"runId,omitempty"`
	Status    string `json:"status,omitempty"`
	Processed int    `json:"processed"`
	Saved     int    `json:"saved"`
	Errors    int    `json:"errors"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// ContactResponse is the body of a successful contact lookup.
type ContactResponse struct {
	Success   bool                  `json:"success"`
	RefNr     string                `json:"refnr"`
	Kontakt   *catalog.ContactInfo  `json:"kontakt"`
	Status    catalog.ContactStatus `json:"kontaktStatus"`
	Challenge string                `json:"challenge,omitempty"`
}

type contactRequest struct {
	RefNr string `json:"refnr"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSync runs a page-capped sync for operators.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	operator, _ := middleware.GetOperator(r)
	log.Printf("[sync] manual run requested by %s (max pages %d)", operator, s.manualMaxPages)

	res, err := s.deps.Sync.Run(r.Context(), syncer.Request{
		Trigger:  db.TriggerManual,
		MaxPages: s.manualMaxPages,
	})
	if err != nil {
		resp := SyncResponse{Success: false, Error: err.Error()}
		if res != nil {
			resp.RunID = res.RunID.String()
			resp.Status = res.Status
		}
		s.jsonResponse(w, HTTPStatus(err), resp)
		return
	}

	s.jsonResponse(w, http.StatusOK, SyncResponse{
		Success:   true,
		RunID:     res.RunID.String(),
		Status:    res.Status,
		Processed: res.Processed,
		Saved:     res.Saved,
		Errors:    res.Errors(),
		Skipped:   res.Skipped,
	})
}

// handleListRuns returns the most recent sync runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.deps.Runs.ListSyncRuns(r.Context(), limit)
	if err != nil {
		log.Printf("[sync] failed to list runs: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []db.SyncRun{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleContact extracts contact details for one reference number.
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if s.deps.Contacts == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "contact lookup is not configured")
		return
	}

	refNr, err := refNrFromRequest(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	res, err := s.deps.Contacts.Lookup(r.Context(), refNr)
	if err != nil {
		log.Printf("[contact] %s: %v", refNr, err)
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	info := res.Contact
	if info == nil {
		info = &catalog.ContactInfo{}
	}
	s.jsonResponse(w, http.StatusOK, ContactResponse{
		Success:   true,
		RefNr:     res.RefNr,
		Kontakt:   info,
		Status:    catalog.StatusFor(info),
		Challenge: string(res.Challenge),
	})
}

// refNrFromRequest reads the reference number from the query string, or
// from a JSON body on POST.
func refNrFromRequest(r *http.Request) (string, error) {
	if refNr := strings.TrimSpace(r.URL.Query().Get("refnr")); refNr != "" {
		return refNr, nil
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return "", lookup.ErrMissingRefNr
	}

	var req contactRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
		return "", lookup.ErrMissingRefNr
	case err != nil:
		return "", &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	refNr := strings.TrimSpace(req.RefNr)
	if refNr == "" {
		return "", lookup.ErrMissingRefNr
	}
	return refNr, nil
}

// handleGetEntry returns one stored catalog entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}

	refNr := r.PathValue("refnr")
	entry, err := s.deps.Catalog.GetEntry(r.Context(), refNr)
	if err != nil {
		log.Printf("[catalog] failed to read %s: %v", refNr, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to read catalog entry")
		return
	}
	if entry == nil {
		s.errorResponse(w, http.StatusNotFound, catalog.ErrNotFound.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, entry)
}
