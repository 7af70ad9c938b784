package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	domainErrors "custodia/pkg/domain-errors"
)

type TokenIssuerSuite struct {
	suite.Suite
	issuer *TokenIssuer
}

func TestTokenIssuerSuite(t *testing.T) {
	suite.Run(t, new(TokenIssuerSuite))
}

func (s *TokenIssuerSuite) SetupTest() {
	s.issuer = NewTokenIssuer("test-signing-key", "custodia-test", time.Hour)
}

func (s *TokenIssuerSuite) TestRoundTrip() {
	token, err := s.issuer.IssueToken("user-1", "asha@example.com", "principal")
	s.Require().NoError(err)

	claims, err := s.issuer.VerifyToken(token)
	s.Require().NoError(err)
	s.Equal("user-1", claims.UserID)
	s.Equal("asha@example.com", claims.Email)
	s.Equal("principal", claims.Role)
}

func (s *TokenIssuerSuite) TestExpiredToken() {
	expired := NewTokenIssuer("test-signing-key", "custodia-test", -time.Minute)
	token, err := expired.IssueToken("user-1", "asha@example.com", "principal")
	s.Require().NoError(err)

	_, err = s.issuer.VerifyToken(token)
	s.Require().Error(err)
	s.Equal(domainErrors.CodeUnauthorized, domainErrors.CodeOf(err))
	s.Contains(err.Error(), "expired")
}

func (s *TokenIssuerSuite) TestWrongKey() {
	other := NewTokenIssuer("other-key", "custodia-test", time.Hour)
	token, err := other.IssueToken("user-1", "asha@example.com", "principal")
	s.Require().NoError(err)

	_, err = s.issuer.VerifyToken(token)
	s.Require().Error(err)
	s.Equal(domainErrors.CodeUnauthorized, domainErrors.CodeOf(err))
}

func (s *TokenIssuerSuite) TestWrongIssuer() {
	other := NewTokenIssuer("test-signing-key", "someone-else", time.Hour)
	token, err := other.IssueToken("user-1", "asha@example.com", "principal")
	s.Require().NoError(err)

	_, err = s.issuer.VerifyToken(token)
	s.Require().Error(err)
	s.Equal(domainErrors.CodeUnauthorized, domainErrors.CodeOf(err))
}

func (s *TokenIssuerSuite) TestRejectsUnexpectedAlgorithm() {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.issuer.VerifyToken(token)
	s.Require().Error(err)
	s.Equal(domainErrors.CodeUnauthorized, domainErrors.CodeOf(err))
}

func (s *TokenIssuerSuite) TestEmptyToken() {
	_, err := s.issuer.VerifyToken("")
	s.Require().Error(err)
	s.Equal(domainErrors.CodeUnauthorized, domainErrors.CodeOf(err))
}
