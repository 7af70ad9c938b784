package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"custodia/internal/platform/middleware"
	domainErrors "custodia/pkg/domain-errors"
)

// AccessTokenClaims are the claims carried by issued access tokens.
type AccessTokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and validates HS256 access tokens. It satisfies
// middleware.TokenVerifier.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewTokenIssuer(signingKey string, issuer string, tokenTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// IssueToken signs an access token for the user.
func (s *TokenIssuer) IssueToken(userID, email, role string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns its claims.
func (s *TokenIssuer) VerifyToken(tokenString string) (*middleware.TokenClaims, error) {
	if tokenString == "" {
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "empty token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainErrors.New(domainErrors.CodeUnauthorized, "token expired")
		}
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok {
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "invalid token claims")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, domainErrors.New(domainErrors.CodeUnauthorized, "invalid token issuer")
	}

	return &middleware.TokenClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
