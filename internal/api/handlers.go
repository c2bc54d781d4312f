package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/icp"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/scoring"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeErrorBody(w, http.StatusServiceUnavailable, "unhealthy", "store unreachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enrichResponse struct {
	Status  model.JobStatus `json:"status"`
	JobID   string          `json:"job_id"`
	Created bool            `json:"created"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	priority := 0
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, apperr.Validation("priority must be an integer"))
			return
		}
		priority = p
	}

	job, created, err := s.svc.Enqueue(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), priority)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enrichResponse{Status: job.Status, JobID: job.ID, Created: created})
}

type batchRequest struct {
	ContactIDs []string `json:"contact_ids"`
	Priority   int      `json:"priority"`
}

type batchResponse struct {
	QueuedCount  int      `json:"queued_count"`
	SkippedCount int      `json:"skipped_count"`
	JobIDs       []string `json:"job_ids,omitempty"`
}

func (s *Server) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.svc.EnqueueBatch(r.Context(), tenantFrom(r.Context()), req.ContactIDs, req.Priority)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := batchResponse{QueuedCount: res.Queued, SkippedCount: res.Skipped}
	for _, j := range res.Jobs {
		resp.JobIDs = append(resp.JobIDs, j.ID)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleEnrichStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r.Context())
	cfg, err := s.configs.Get(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.collector.Collect(r.Context(), tenantID, cfg.Thresholds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type contactRequest struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Company       string     `json:"company"`
	Title         string     `json:"title"`
	Phone         string     `json:"phone"`
	LinkedInURL   string     `json:"linkedin_url"`
	WebsiteURL    string     `json:"website_url"`
	Industry      string     `json:"industry"`
	CompanySize   string     `json:"company_size"`
	LastEngagedAt *time.Time `json:"last_engaged_at"`
}

func (s *Server) handleUpsertContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, apperr.Validation("invalid contact", "name is required"))
		return
	}

	c, err := s.store.UpsertContact(r.Context(), &model.Contact{
		ID:            chi.URLParam(r, "id"),
		TenantID:      tenantFrom(r.Context()),
		Name:          req.Name,
		Email:         req.Email,
		Company:       req.Company,
		Title:         req.Title,
		Phone:         req.Phone,
		LinkedInURL:   req.LinkedInURL,
		WebsiteURL:    req.WebsiteURL,
		Industry:      req.Industry,
		CompanySize:   req.CompanySize,
		LastEngagedAt: req.LastEngagedAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetContact(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Get(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutWeights(w http.ResponseWriter, r *http.Request) {
	var u scoring.Update
	if err := decode(r, &u, false); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := s.configs.Put(r.Context(), tenantFrom(r.Context()), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetICP(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetICP(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type icpRequest struct {
	Name     string            `json:"name"`
	Criteria model.ICPCriteria `json:"criteria"`
	Weights  model.ICPWeights  `json:"weights"`
}

func (s *Server) handlePutICP(w http.ResponseWriter, r *http.Request) {
	var req icpRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	p := model.ICP{
		ID:       chi.URLParam(r, "id"),
		TenantID: tenantFrom(r.Context()),
		Name:     req.Name,
		Criteria: req.Criteria,
		Weights:  req.Weights,
	}
	if err := icp.Validate(p); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.store.PutICP(r.Context(), &p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type matchRequest struct {
	ContactIDs []string `json:"contact_ids"`
	MinScore   int      `json:"min_score"`
}

func (s *Server) handleMatchICP(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.MatchICP(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), req.ContactIDs, req.MinScore)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
