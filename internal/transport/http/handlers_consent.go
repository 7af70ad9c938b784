package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/consent"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// ConsentService is the slice of the consent ledger the handlers need.
type ConsentService interface {
	Grant(ctx context.Context, userID id.UserID, purpose consent.Purpose, version string, meta consent.RequestMeta) (*consent.Record, error)
	Withdraw(ctx context.Context, userID id.UserID, purpose consent.Purpose, meta consent.RequestMeta) (*consent.Record, error)
	Status(ctx context.Context, userID id.UserID, purpose consent.Purpose) (bool, error)
	List(ctx context.Context, userID id.UserID) ([]*consent.Record, error)
}

// ConsentHandler handles consent grant, withdrawal and history endpoints.
type ConsentHandler struct {
	ledger ConsentService
}

func NewConsentHandler(ledger ConsentService) *ConsentHandler {
	return &ConsentHandler{ledger: ledger}
}

type consentRequest struct {
	Purpose string `json:"purpose"`
	Version string `json:"version"`
}

type consentResponse struct {
	ID          string     `json:"id"`
	Purpose     string     `json:"purpose"`
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	GrantedAt   time.Time  `json:"granted_at"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

func toConsentResponse(rec *consent.Record) consentResponse {
	return consentResponse{
		ID:          rec.ID.String(),
		Purpose:     string(rec.Purpose),
		Status:      string(rec.Status),
		Version:     rec.Version,
		GrantedAt:   rec.GrantedAt,
		WithdrawnAt: rec.WithdrawnAt,
	}
}

func (h *ConsentHandler) requestMeta(r *http.Request) consent.RequestMeta {
	return consent.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: middleware.GetRequestID(r.Context()),
	}
}

func (h *ConsentHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.ledger.Grant(r.Context(), userID, consent.Purpose(req.Purpose), req.Version, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toConsentResponse(rec))
}

func (h *ConsentHandler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.ledger.Withdraw(r.Context(), userID, consent.Purpose(req.Purpose), h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConsentResponse(rec))
}

func (h *ConsentHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	purpose := consent.Purpose(chi.URLParam(r, "purpose"))

	active, err := h.ledger.Status(r.Context(), userID, purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"purpose": string(purpose),
		"granted": active,
	})
}

func (h *ConsentHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.ledger.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toConsentResponse(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"consents": out,
		"total":    len(out),
	})
}
