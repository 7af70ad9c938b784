package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/grievance"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

// GrievanceService is the slice of the case manager the handlers need.
type GrievanceService interface {
	Submit(ctx context.Context, userID id.UserID, subject, description string, category grievance.Category, meta grievance.RequestMeta) (*grievance.Grievance, error)
	Escalate(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID, reason string, meta grievance.RequestMeta) (*grievance.Grievance, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*grievance.Grievance, error)
	GetForUser(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID) (*grievance.Grievance, error)
}

// GrievanceHandler handles grievance submission, lookup and escalation.
type GrievanceHandler struct {
	manager GrievanceService
}

func NewGrievanceHandler(manager GrievanceService) *GrievanceHandler {
	return &GrievanceHandler{manager: manager}
}

type submitGrievanceRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

type grievanceResponse struct {
	ID               string     `json:"id"`
	TicketNumber     string     `json:"ticket_number"`
	Subject          string     `json:"subject"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Resolution       string     `json:"resolution,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	SLADeadline      time.Time  `json:"sla_deadline"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toGrievanceResponse(g *grievance.Grievance) grievanceResponse {
	resp := grievanceResponse{
		ID:               g.ID.String(),
		TicketNumber:     g.TicketNumber,
		Subject:          g.Subject,
		Description:      g.Description,
		Category:         string(g.Category),
		Status:           string(g.Status),
		Priority:         g.Priority,
		Resolution:       g.Resolution,
		ResolvedAt:       g.ResolvedAt,
		SLADeadline:      g.SLADeadline,
		EscalatedAt:      g.EscalatedAt,
		EscalationReason: g.EscalationReason,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
	if g.AssignedTo != nil {
		resp.AssignedTo = g.AssignedTo.String()
	}
	return resp
}

func (h *GrievanceHandler) requestMeta(r *http.Request) grievance.RequestMeta {
	return grievance.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: middleware.GetRequestID(r.Context()),
	}
}

func grievanceIDParam(r *http.Request) (id.GrievanceID, error) {
	grievanceID, err := id.ParseGrievanceID(chi.URLParam(r, "id"))
	if err != nil {
		return id.GrievanceID{}, domainErrors.New(domainErrors.CodeBadRequest, "invalid grievance id")
	}
	return grievanceID, nil
}

func (h *GrievanceHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitGrievanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.manager.Submit(r.Context(), userID, req.Subject, req.Description,
		grievance.Category(req.Category), h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toGrievanceResponse(g))
}

func (h *GrievanceHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	grievances, err := h.manager.ListForUser(r.Context(), userID)
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

func (h *GrievanceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	grievanceID, err := grievanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := h.manager.GetForUser(r.Context(), grievanceID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrievanceResponse(g))
}

func (h *GrievanceHandler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	grievanceID, err := grievanceIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req escalateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := h.manager.Escalate(r.Context(), grievanceID, userID, req.Reason, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrievanceResponse(g))
}
