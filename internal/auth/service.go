package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"custodia/internal/anomaly"
	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/notifier"
	"custodia/internal/platform/device"
	"custodia/internal/platform/metrics"
	"custodia/internal/sentinel"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
	"custodia/pkg/secrets"
	str "custodia/pkg/string"
	"custodia/pkg/validation"
)

// Audit actions emitted by the auth service.
const (
	ActionUserRegistered = "user_registered"
	ActionUserLogin      = "user_login"
	ActionLoginFailed    = "failed_login_attempt"
)

const minPasswordLength = 8

// RegisterRequest carries a new account registration.
type RegisterRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	FullName string `validate:"required,notblank,max=200"`
	Phone    string `validate:"omitempty,max=50"`
	Address  string `validate:"omitempty,max=500"`

	Meta RequestMeta
}

// RequestMeta captures caller context for auditing.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// Service handles registration and authentication. Failed logins are
// audited as security events and relayed to the SIEM sink.
type Service struct {
	users     user.Store
	ledger    *consent.Ledger
	trail     *audit.Trail
	detector  *anomaly.Detector
	forwarder EntryForwarder
	tokens    *TokenIssuer
	notifier  notifier.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// EntryForwarder relays accepted audit entries to the SIEM sink.
type EntryForwarder interface {
	ForwardEntry(entry *audit.Entry)
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDetector(d *anomaly.Detector) Option {
	return func(s *Service) { s.detector = d }
}

func WithForwarder(f EntryForwarder) Option {
	return func(s *Service) { s.forwarder = f }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs an auth service.
func NewService(users user.Store, ledger *consent.Ledger, trail *audit.Trail, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:    users,
		ledger:   ledger,
		trail:    trail,
		tokens:   tokens,
		detector: anomaly.NewDetector(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new account, grants the essential consent, and
// audits the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*user.User, error) {
	str.TrimStrings(&req.Email, &req.FullName, &req.Phone, &req.Address)
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	if err := checkPasswordStrength(req.Password); err != nil {
		return nil, err
	}

	hash, err := secrets.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &user.User{
		ID:           id.NewUserID(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Address:      req.Address,
		Role:         user.RolePrincipal,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainErrors.New(domainErrors.CodeConflict, "email already registered")
		}
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to create user")
	}

	entry, err := s.record(ctx, &u.ID, ActionUserRegistered, audit.CategoryAuthentication, audit.SeverityInfo, audit.Details{
		"email_domain": emailDomain(u.Email),
		"role":         string(u.Role),
		"device":       device.Describe(req.Meta.UserAgent),
	}, req.Meta)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.InitializeEssential(ctx, u.ID, consent.RequestMeta{
		IPAddress: req.Meta.IPAddress,
		UserAgent: req.Meta.UserAgent,
		SessionID: req.Meta.SessionID,
	}); err != nil {
		s.logger.Error("essential consent initialization failed", "user_id", u.ID, "error", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementUsersRegistered()
	}
	s.forward(entry)
	if s.notifier != nil {
		s.notifier.Welcome(ctx, u.Email, u.FullName)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login authenticates the credentials and issues an access token. A
// failed attempt against a known account is audited and forwarded to
// the SIEM sink.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*user.User, string, error) {
	invalid := domainErrors.New(domainErrors.CodeUnauthorized, "invalid credentials")

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", invalid
		}
		return nil, "", domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to look up user")
	}
	if !u.IsActive {
		return nil, "", domainErrors.New(domainErrors.CodeUnauthorized, "account is deactivated")
	}

	if err := secrets.Verify(password, u.PasswordHash); err != nil {
		entry, recErr := s.record(ctx, &u.ID, ActionLoginFailed, audit.CategorySecurityEvent, audit.SeverityWarning, audit.Details{
			"email_domain": emailDomain(u.Email),
			"device":       device.Describe(meta.UserAgent),
		}, meta)
		if recErr != nil {
			s.logger.Error("failed login audit failed", "user_id", u.ID, "error", recErr)
		}
		if s.metrics != nil {
			s.metrics.IncrementAuthFailures()
		}
		s.forward(entry)
		return nil, "", invalid
	}

	now := s.now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, "", domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to update login time")
	}

	if _, err := s.record(ctx, &u.ID, ActionUserLogin, audit.CategoryAuthentication, audit.SeverityInfo, audit.Details{
		"device": device.Describe(meta.UserAgent),
	}, meta); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.IssueToken(u.ID.String(), u.Email, string(u.Role))
	if err != nil {
		return nil, "", err
	}

	return u, token, nil
}

// CurrentUser resolves the authenticated user from a token subject.
func (s *Service) CurrentUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainErrors.New(domainErrors.CodeUnauthorized, "user no longer exists")
		}
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to look up user")
	}
	if !u.IsActive {
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "account is deactivated")
	}
	return u, nil
}

func (s *Service) record(ctx context.Context, actorID *id.UserID, action string, category audit.Category, severity audit.Severity, details audit.Details, meta RequestMeta) (*audit.Entry, error) {
	assessment := s.detector.Assess(action)
	score := assessment.Score

	return s.trail.Record(ctx, audit.Record{
		ActorID:  actorID,
		Action:   action,
		Category: category,
		Severity: severity,
		Details:  details,
		Meta: audit.RequestMeta{
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			SessionID: meta.SessionID,
		},
		IsAnomaly:    assessment.IsAnomalous(),
		AnomalyScore: &score,
	})
}

func (s *Service) forward(entry *audit.Entry) {
	if s.forwarder != nil && entry != nil {
		s.forwarder.ForwardEntry(entry)
	}
}

func checkPasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return domainErrors.New(domainErrors.CodeValidation, "password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return domainErrors.New(domainErrors.CodeValidation, "password must contain an uppercase letter")
	}
	if !hasLower {
		return domainErrors.New(domainErrors.CodeValidation, "password must contain a lowercase letter")
	}
	if !hasDigit {
		return domainErrors.New(domainErrors.CodeValidation, "password must contain a digit")
	}
	return nil
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
