package httptransport

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.New(domainErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// currentUserID resolves the authenticated principal set by RequireAuth.
func currentUserID(r *http.Request) (id.UserID, error) {
	raw := middleware.GetUserID(r.Context())
	userID, err := id.ParseUserID(raw)
	if err != nil || userID.IsNil() {
		return id.UserID{}, domainErrors.New(domainErrors.CodeUnauthorized, "invalid principal")
	}
	return userID, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}
