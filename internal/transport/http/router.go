// Package httptransport is the thin HTTP layer. Handlers delegate to
// domain services without embedding business logic so transport
// concerns remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/health"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
)

// Deps carries everything the router needs.
type Deps struct {
	Auth      *AuthHandler
	Consent   *ConsentHandler
	Grievance *GrievanceHandler
	Rights    *RightsHandler
	Admin     *AdminHandler
	Health    *health.Handler
	Verifier  middleware.TokenVerifier
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// NewRouter wires all endpoints with the shared middleware stack. The
// admin subtree additionally requires a dpo or admin role.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(d.Metrics))

	if d.Health != nil {
		d.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/auth/register", d.Auth.handleRegister)
	r.Post("/auth/login", d.Auth.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Verifier, d.Logger))

		r.Get("/auth/me", d.Auth.handleMe)

		r.Post("/consent/grant", d.Consent.handleGrant)
		r.Post("/consent/withdraw", d.Consent.handleWithdraw)
		r.Get("/consent/status/{purpose}", d.Consent.handleStatus)
		r.Get("/consent/history", d.Consent.handleHistory)

		r.Post("/grievances", d.Grievance.handleSubmit)
		r.Get("/grievances", d.Grievance.handleListMine)
		r.Get("/grievances/{id}", d.Grievance.handleGet)
		r.Post("/grievances/{id}/escalate", d.Grievance.handleEscalate)

		r.Get("/me/data", d.Rights.handleAccess)
		r.Patch("/me/data", d.Rights.handleCorrect)
		r.Get("/me/export", d.Rights.handleExport)
		r.Post("/me/erasure", d.Rights.handleRequestErasure)
		r.Delete("/me/erasure", d.Rights.handleCancelErasure)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(d.Logger))

			r.Get("/admin/grievances", d.Admin.handleListGrievances)
			r.Patch("/admin/grievances/{id}", d.Admin.handleUpdateGrievance)
			r.Get("/admin/grievances/overdue", d.Admin.handleOverdueGrievances)
			r.Get("/admin/grievances/pending-count", d.Admin.handlePendingCount)
			r.Get("/admin/audit", d.Admin.handleListAudit)
			r.Get("/admin/retention-policies", d.Admin.handleListPolicies)
			r.Patch("/admin/retention-policies/{dataType}", d.Admin.handleUpdatePolicy)
		})
	})

	return r
}
