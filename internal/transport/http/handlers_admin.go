package httptransport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/audit"
	"custodia/internal/grievance"
	"custodia/internal/retention"
	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

// GrievanceAdminService is the administrative slice of the case manager.
type GrievanceAdminService interface {
	ListAll(ctx context.Context, filter grievance.Filter) ([]*grievance.Grievance, int, error)
	UpdateStatus(ctx context.Context, grievanceID id.GrievanceID, actorID id.UserID, req grievance.UpdateRequest) (*grievance.Grievance, error)
	CountPending(ctx context.Context) (int, error)
	ListOverdue(ctx context.Context) ([]*grievance.Grievance, error)
}

// AuditReader is the review slice of the audit trail.
type AuditReader interface {
	List(ctx context.Context, filter *audit.Filter) ([]*audit.Entry, error)
}

// AdminHandler handles the DPO surface: the grievance queue, audit
// review and retention policies.
type AdminHandler struct {
	grievances GrievanceAdminService
	auditLog   AuditReader
	policies   retention.Store
}

func NewAdminHandler(grievances GrievanceAdminService, auditLog AuditReader, policies retention.Store) *AdminHandler {
	return &AdminHandler{
		grievances: grievances,
		auditLog:   auditLog,
		policies:   policies,
	}
}

type updateGrievanceRequest struct {
	Status     *string `json:"status"`
	Resolution *string `json:"resolution"`
	Priority   *string `json:"priority"`
	AssignedTo *string `json:"assigned_to"`
}

type auditEntryResponse struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	IsAnomaly    bool           `json:"is_anomaly"`
	AnomalyScore *float64       `json:"anomaly_score,omitempty"`
	SIEMSent     bool           `json:"siem_sent"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toAuditEntryResponse(e *audit.Entry) auditEntryResponse {
	resp := auditEntryResponse{
		ID:           e.ID.String(),
		Action:       e.Action,
		Category:     string(e.Category),
		Severity:     string(e.Severity),
		Details:      e.Details,
		IPAddress:    e.Meta.IPAddress,
		IsAnomaly:    e.IsAnomaly,
		AnomalyScore: e.AnomalyScore,
		SIEMSent:     e.SIEMSent,
		CreatedAt:    e.CreatedAt,
	}
	if e.ActorID != nil {
		resp.ActorID = e.ActorID.String()
	}
	if e.Resource != nil {
		resp.ResourceType = e.Resource.Type
		resp.ResourceID = e.Resource.ID
	}
	return resp
}

type policyResponse struct {
	ID                  string     `json:"id"`
	DataType            string     `json:"data_type"`
	RetentionPeriodDays int        `json:"retention_period_days"`
	Description         string     `json:"description,omitempty"`
	LegalBasis          string     `json:"legal_basis,omitempty"`
	IsActive            bool       `json:"is_active"`
	LastReviewedAt      *time.Time `json:"last_reviewed_at,omitempty"`
	ReviewedBy          string     `json:"reviewed_by,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toPolicyResponse(p *retention.Policy) policyResponse {
	resp := policyResponse{
		ID:                  p.ID.String(),
		DataType:            p.DataType,
		RetentionPeriodDays: p.RetentionPeriodDays,
		Description:         p.Description,
		LegalBasis:          p.LegalBasis,
		IsActive:            p.IsActive,
		LastReviewedAt:      p.LastReviewedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.ReviewedBy != nil {
		resp.ReviewedBy = p.ReviewedBy.String()
	}
	return resp
}

func (h *AdminHandler) handleListGrievances(w http.ResponseWriter, r *http.Request) {
	filter := grievance.Filter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := grievance.Status(raw)
		if !status.IsValid() {
			writeError(w, domainErrors.New(domainErrors.CodeBadRequest, "invalid status filter"))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("priority"); raw != "" {
		filter.Priority = &raw
	}

	grievances, total, err := h.grievances.ListAll(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]grievanceResponse, 0, len(grievances))
	for _, g := range grievances {
		out = append(out, toGrievanceResponse(g))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"grievances": out,
		"total":      total,
	})
}

func (h *AdminHandler) handleUpdateGrievance(w http.ResponseWriter, r *http.Request) {
	actorID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	grievanceID, err := grievanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateGrievanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	update := grievance.UpdateRequest{
		Resolution: req.Resolution,
		Priority:   req.Priority,
	}
	if req.Status != nil {
		status := grievance.Status(*req.Status)
		update.Status = &status
	}
	if req.AssignedTo != nil {
		assignee, err := id.ParseUserID(*req.AssignedTo)
		if err != nil {
			writeError(w, domainErrors.New(domainErrors.CodeBadRequest, "invalid assignee id"))
			return
		}
		update.AssignedTo = &assignee
	}

	g, err := h.grievances.UpdateStatus(r.Context(), grievanceID, actorID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrievanceResponse(g))
}

func (h *AdminHandler) handleOverdueGrievances(w http.ResponseWriter, r *http.Request) {
	grievances, err := h.grievances.ListOverdue(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]grievanceResponse, 0, len(grievances))
	for _, g := range grievances {
		out = append(out, toGrievanceResponse(g))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"grievances": out,
		"total":      len(out),
	})
}

func (h *AdminHandler) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.grievances.CountPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"pending": count})
}

func (h *AdminHandler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	filter := &audit.Filter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("category"); raw != "" {
		category := audit.Category(raw)
		if !category.IsValid() {
			writeError(w, domainErrors.New(domainErrors.CodeBadRequest, "invalid category filter"))
			return
		}
		filter.Category = &category
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domainErrors.New(domainErrors.CodeBadRequest, "since must be RFC3339"))
			return
		}
		filter.Since = &since
	}

	entries, err := h.auditLog.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"total":   len(out),
	})
}

func (h *AdminHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, toPolicyResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"policies": out,
		"total":    len(out),
	})
}

type updatePolicyRequest struct {
	RetentionPeriodDays *int    `json:"retention_period_days"`
	Description         *string `json:"description"`
	LegalBasis          *string `json:"legal_basis"`
	IsActive            *bool   `json:"is_active"`
}

func (h *AdminHandler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	actorID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dataType := chi.URLParam(r, "dataType")

	var req updatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RetentionPeriodDays != nil && *req.RetentionPeriodDays <= 0 {
		writeError(w, domainErrors.New(domainErrors.CodeValidation, "retention_period_days must be positive"))
		return
	}

	p, err := h.policies.GetByDataType(r.Context(), dataType)
	if err != nil {
		writeError(w, domainErrors.Wrap(err, codeForStoreErr(err), "retention policy lookup failed"))
		return
	}

	if req.RetentionPeriodDays != nil {
		p.RetentionPeriodDays = *req.RetentionPeriodDays
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.LegalBasis != nil {
		p.LegalBasis = *req.LegalBasis
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	now := time.Now().UTC()
	p.LastReviewedAt = &now
	p.ReviewedBy = &actorID

	if err := h.policies.Update(r.Context(), p); err != nil {
		writeError(w, domainErrors.Wrap(err, codeForStoreErr(err), "retention policy update failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPolicyResponse(p))
}

func codeForStoreErr(err error) domainErrors.Code {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domainErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		return domainErrors.CodeConflict
	default:
		return domainErrors.CodeInternal
	}
}
