package httptransport

import (
	"context"
	"net/http"

	"custodia/internal/platform/middleware"
	"custodia/internal/rights"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/httputil"
)

// RightsService is the slice of the rights operations the handlers need.
type RightsService interface {
	Access(ctx context.Context, userID id.UserID, meta rights.RequestMeta) (*user.User, error)
	Correct(ctx context.Context, userID id.UserID, req rights.CorrectionRequest, meta rights.RequestMeta) (*user.User, error)
	Export(ctx context.Context, userID id.UserID, meta rights.RequestMeta) (*rights.ExportBundle, error)
	RequestErasure(ctx context.Context, userID id.UserID, meta rights.RequestMeta) (*user.User, error)
	CancelErasure(ctx context.Context, userID id.UserID, meta rights.RequestMeta) (*user.User, error)
}

// RightsHandler handles data-subject rights endpoints: access,
// correction, export and the erasure lifecycle.
type RightsHandler struct {
	ops RightsService
}

func NewRightsHandler(ops RightsService) *RightsHandler {
	return &RightsHandler{ops: ops}
}

type correctionRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

func (h *RightsHandler) requestMeta(r *http.Request) rights.RequestMeta {
	return rights.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: middleware.GetRequestID(r.Context()),
	}
}

func (h *RightsHandler) handleAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.ops.Access(r.Context(), userID, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *RightsHandler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.ops.Correct(r.Context(), userID, rights.CorrectionRequest{
		FullName: req.FullName,
		Phone:    req.Phone,
		Address:  req.Address,
	}, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *RightsHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	bundle, err := h.ops.Export(r.Context(), userID, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="personal-data-export.json"`)
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

func (h *RightsHandler) handleRequestErasure(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.ops.RequestErasure(r.Context(), userID, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"deletion_requested_at": u.DeletionRequestedAt,
		"scheduled_deletion_at": u.ScheduledDeletionAt,
	})
}

func (h *RightsHandler) handleCancelErasure(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := h.ops.CancelErasure(r.Context(), userID, h.requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}
