package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/auth"
	"custodia/internal/consent"
	"custodia/internal/grievance"
	"custodia/internal/platform/health"
	"custodia/internal/retention"
	"custodia/internal/rights"
	"custodia/internal/user"
)

const testUserPassword = "Sup3rSecret"

type RouterSuite struct {
	suite.Suite
	ctx      context.Context
	server     *httptest.Server
	users      *user.InMemoryStore
	auditStore *audit.InMemoryStore
	policies   *retention.InMemoryStore
	clock      time.Time
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	s.users = user.NewInMemoryStore()
	consents := consent.NewInMemoryStore()
	grievances := grievance.NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()
	s.auditStore = auditStore
	s.policies = retention.NewInMemoryStore()
	s.Require().NoError(retention.SeedPolicies(s.ctx, s.policies, s.clock))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trail := audit.NewTrail(auditStore, audit.WithLogger(logger))
	ledger := consent.NewLedger(consents, consent.NewMemoryTx(consents, auditStore), trail,
		consent.WithLogger(logger))
	manager := grievance.NewCaseManager(grievances, grievance.NewMemoryTx(grievances, auditStore), trail,
		grievance.WithLogger(logger),
		grievance.WithClock(s.now))
	ops := rights.NewOperations(s.users, ledger, rights.NewMemoryTx(rights.TxStores{
		Users:      s.users,
		Consents:   consents,
		Grievances: grievances,
		Audit:      auditStore,
	}), trail, rights.WithLogger(logger), rights.WithClock(s.now))

	tokens := auth.NewTokenIssuer("test-signing-key", "custodia-test", time.Hour)
	authSvc := auth.NewService(s.users, ledger, trail, tokens, auth.WithLogger(logger))

	router := NewRouter(Deps{
		Auth:      NewAuthHandler(authSvc),
		Consent:   NewConsentHandler(ledger),
		Grievance: NewGrievanceHandler(manager),
		Rights:    NewRightsHandler(ops),
		Admin:     NewAdminHandler(manager, trail, s.policies),
		Health:    health.New("test"),
		Verifier:  tokens,
		Logger:    logger,
	})
	s.server = httptest.NewServer(router)
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) now() time.Time { return s.clock }

func (s *RouterSuite) do(method, path, token string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func (s *RouterSuite) register(email string) map[string]any {
	status, body := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email":     email,
		"password":  testUserPassword,
		"full_name": "Asha Rao",
	})
	s.Require().Equal(http.StatusCreated, status)
	return body
}

func (s *RouterSuite) login(email string) string {
	status, body := s.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": testUserPassword,
	})
	s.Require().Equal(http.StatusOK, status)
	token, _ := body["access_token"].(string)
	s.Require().NotEmpty(token)
	return token
}

func (s *RouterSuite) adminToken(email string) string {
	s.register(email)
	u, err := s.users.GetByEmail(s.ctx, email)
	s.Require().NoError(err)
	u.Role = user.RoleDPO
	s.Require().NoError(s.users.Update(s.ctx, u))
	return s.login(email)
}

func (s *RouterSuite) TestAuditCapturesRequestSession() {
	s.register("session@example.com")
	token := s.login("session@example.com")

	var buf bytes.Buffer
	s.Require().NoError(json.NewEncoder(&buf).Encode(map[string]string{"purpose": "analytics"}))
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/consent/grant", &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-4d2a9c")

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	u, err := s.users.GetByEmail(s.ctx, "session@example.com")
	s.Require().NoError(err)
	entries, err := s.auditStore.ListByActor(s.ctx, u.ID, nil)
	s.Require().NoError(err)
	s.Require().NotEmpty(entries)
	s.Equal(consent.ActionGranted, entries[0].Action)
	s.Equal("req-4d2a9c", entries[0].Meta.SessionID)
}

func (s *RouterSuite) TestRegisterAndLogin() {
	body := s.register("asha@example.com")
	s.Equal("asha@example.com", body["email"])
	s.Equal("principal", body["role"])

	token := s.login("asha@example.com")

	status, me := s.do(http.MethodGet, "/auth/me", token, nil)
	s.Equal(http.StatusOK, status)
	s.Equal("asha@example.com", me["email"])

	s.Run("wrong password is unauthorized", func() {
		status, body := s.do(http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "asha@example.com",
			"password": "WrongPass1",
		})
		s.Equal(http.StatusUnauthorized, status)
		s.Equal("unauthorized", body["error"])
	})

	s.Run("duplicate registration conflicts", func() {
		status, _ := s.do(http.MethodPost, "/auth/register", "", map[string]string{
			"email":     "asha@example.com",
			"password":  testUserPassword,
			"full_name": "Other",
		})
		s.Equal(http.StatusConflict, status)
	})
}

func (s *RouterSuite) TestAuthRequired() {
	for _, path := range []string{"/auth/me", "/consent/history", "/grievances", "/me/data"} {
		status, _ := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusUnauthorized, status, path)
	}
}

func (s *RouterSuite) TestConsentEndpoints() {
	s.register("consent@example.com")
	token := s.login("consent@example.com")

	status, body := s.do(http.MethodPost, "/consent/grant", token, map[string]string{
		"purpose": "marketing",
	})
	s.Require().Equal(http.StatusCreated, status)
	s.Equal("granted", body["status"])
	s.Equal(consent.DefaultPolicyVersion, body["version"])

	s.Run("status reflects the grant", func() {
		status, body := s.do(http.MethodGet, "/consent/status/marketing", token, nil)
		s.Equal(http.StatusOK, status)
		s.Equal(true, body["granted"])
	})

	s.Run("duplicate grant conflicts", func() {
		status, _ := s.do(http.MethodPost, "/consent/grant", token, map[string]string{
			"purpose": "marketing",
		})
		s.Equal(http.StatusConflict, status)
	})

	s.Run("essential cannot be withdrawn", func() {
		status, body := s.do(http.MethodPost, "/consent/withdraw", token, map[string]string{
			"purpose": "essential",
		})
		s.Equal(http.StatusPreconditionFailed, status)
		s.Equal("policy_violation", body["error"])
	})

	s.Run("withdraw then history", func() {
		status, _ := s.do(http.MethodPost, "/consent/withdraw", token, map[string]string{
			"purpose": "marketing",
		})
		s.Require().Equal(http.StatusOK, status)

		status, body := s.do(http.MethodGet, "/consent/history", token, nil)
		s.Equal(http.StatusOK, status)
		// essential from registration plus the withdrawn marketing record
		s.Equal(float64(2), body["total"])
	})

	s.Run("invalid purpose is rejected", func() {
		status, _ := s.do(http.MethodPost, "/consent/grant", token, map[string]string{
			"purpose": "telepathy",
		})
		s.Equal(http.StatusBadRequest, status)
	})
}

func (s *RouterSuite) TestGrievanceEndpoints() {
	s.register("grieving@example.com")
	token := s.login("grieving@example.com")

	status, body := s.do(http.MethodPost, "/grievances", token, map[string]string{
		"subject":     "Too many calls",
		"description": "I receive too many marketing calls daily",
	})
	s.Require().Equal(http.StatusCreated, status)
	s.Equal("pending", body["status"])
	s.Equal("other", body["category"])
	grievanceID, _ := body["id"].(string)
	s.Require().NotEmpty(grievanceID)
	s.Regexp(`^GRV-\d{8}-\d{4}$`, body["ticket_number"])

	s.Run("immediate escalation is blocked", func() {
		status, body := s.do(http.MethodPost, "/grievances/"+grievanceID+"/escalate", token, map[string]string{
			"reason": "No response",
		})
		s.Equal(http.StatusPreconditionFailed, status)
		s.Equal("policy_violation", body["error"])
	})

	s.Run("escalation succeeds after the deadline", func() {
		s.clock = s.clock.Add(grievance.DefaultSLA + 24*time.Hour)
		status, body := s.do(http.MethodPost, "/grievances/"+grievanceID+"/escalate", token, map[string]string{
			"reason": "No response",
		})
		s.Equal(http.StatusOK, status)
		s.Equal("escalated", body["status"])

		status, _ = s.do(http.MethodPost, "/grievances/"+grievanceID+"/escalate", token, map[string]string{
			"reason": "Again",
		})
		s.Equal(http.StatusConflict, status)
	})

	s.Run("other users cannot see the grievance", func() {
		s.register("other@example.com")
		otherToken := s.login("other@example.com")
		status, _ := s.do(http.MethodGet, "/grievances/"+grievanceID, otherToken, nil)
		s.Equal(http.StatusNotFound, status)
	})

	s.Run("validation failures are 400", func() {
		status, _ := s.do(http.MethodPost, "/grievances", token, map[string]string{
			"subject":     "Hi",
			"description": "I receive too many marketing calls daily",
		})
		s.Equal(http.StatusBadRequest, status)
	})
}

func (s *RouterSuite) TestRightsEndpoints() {
	s.register("rights@example.com")
	token := s.login("rights@example.com")

	s.Run("access returns the profile", func() {
		status, body := s.do(http.MethodGet, "/me/data", token, nil)
		s.Equal(http.StatusOK, status)
		s.Equal("rights@example.com", body["email"])
	})

	s.Run("correction updates the profile", func() {
		status, body := s.do(http.MethodPatch, "/me/data", token, map[string]string{
			"full_name": "Asha R. Rao",
		})
		s.Equal(http.StatusOK, status)
		s.Equal("Asha R. Rao", body["full_name"])
	})

	s.Run("export bundles profile, consents and activity", func() {
		status, body := s.do(http.MethodGet, "/me/export", token, nil)
		s.Equal(http.StatusOK, status)
		s.Contains(body, "personal_data")
		s.Contains(body, "consents")
		s.Contains(body, "recent_activity")
	})

	s.Run("erasure lifecycle", func() {
		status, body := s.do(http.MethodPost, "/me/erasure", token, nil)
		s.Equal(http.StatusAccepted, status)
		s.NotNil(body["scheduled_deletion_at"])

		status, _ = s.do(http.MethodDelete, "/me/erasure", token, nil)
		s.Equal(http.StatusOK, status)

		status, _ = s.do(http.MethodDelete, "/me/erasure", token, nil)
		s.Equal(http.StatusConflict, status)
	})
}

func (s *RouterSuite) TestAdminEndpoints() {
	s.register("principal@example.com")
	principalToken := s.login("principal@example.com")

	s.Run("principals are forbidden", func() {
		status, _ := s.do(http.MethodGet, "/admin/grievances", principalToken, nil)
		s.Equal(http.StatusForbidden, status)
	})

	adminToken := s.adminToken("dpo@example.com")

	status, _ := s.do(http.MethodPost, "/grievances", principalToken, map[string]string{
		"subject":     "Stop the emails",
		"description": "Marketing emails keep arriving after withdrawal",
		"category":    "consent_withdrawal",
	})
	s.Require().Equal(http.StatusCreated, status)

	s.Run("queue lists the grievance", func() {
		status, body := s.do(http.MethodGet, "/admin/grievances", adminToken, nil)
		s.Equal(http.StatusOK, status)
		s.Equal(float64(1), body["total"])
	})

	s.Run("pending count", func() {
		status, body := s.do(http.MethodGet, "/admin/grievances/pending-count", adminToken, nil)
		s.Equal(http.StatusOK, status)
		s.Equal(float64(1), body["pending"])
	})

	s.Run("resolve through the queue", func() {
		_, listBody := s.do(http.MethodGet, "/admin/grievances", adminToken, nil)
		items, _ := listBody["grievances"].([]any)
		s.Require().NotEmpty(items)
		first, _ := items[0].(map[string]any)
		grievanceID, _ := first["id"].(string)

		status, body := s.do(http.MethodPatch, "/admin/grievances/"+grievanceID, adminToken, map[string]string{
			"status":     "resolved",
			"resolution": "Unsubscribed and confirmed with the principal",
		})
		s.Equal(http.StatusOK, status)
		s.Equal("resolved", body["status"])
		s.NotNil(body["resolved_at"])
	})

	s.Run("audit review filters by category", func() {
		status, body := s.do(http.MethodGet, "/admin/audit?category=grievance", adminToken, nil)
		s.Equal(http.StatusOK, status)
		entries, _ := body["entries"].([]any)
		s.NotEmpty(entries)
	})

	s.Run("retention policies list and update", func() {
		status, body := s.do(http.MethodGet, "/admin/retention-policies", adminToken, nil)
		s.Equal(http.StatusOK, status)
		s.Equal(float64(3), body["total"])

		status, updated := s.do(http.MethodPatch, "/admin/retention-policies/"+retention.DataTypeUserAccount, adminToken, map[string]int{
			"retention_period_days": 400,
		})
		s.Equal(http.StatusOK, status)
		s.Equal(float64(400), updated["retention_period_days"])
		s.NotNil(updated["last_reviewed_at"])

		status, _ = s.do(http.MethodPatch, "/admin/retention-policies/unknown_type", adminToken, map[string]int{
			"retention_period_days": 10,
		})
		s.Equal(http.StatusNotFound, status)
	})
}

func (s *RouterSuite) TestHealthAndMetrics() {
	resp, err := s.server.Client().Get(s.server.URL + "/health/live")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, err = s.server.Client().Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
