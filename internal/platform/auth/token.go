package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService mints the self-issued access tokens handed out in exchange for
// a verified Apple identity. Tokens carry no exp claim; see
// Verifier.VerifySelfIssued.
type TokenService struct {
	secret    []byte
	issuer    string
	audiences []string
}

func NewTokenService(secret []byte, issuer string, audiences []string) *TokenService {
	return &TokenService{secret: secret, issuer: issuer, audiences: audiences}
}

// Issue signs an HS256 token for the given subject.
func (s *TokenService) Issue(subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Audience: s.audiences,
		Issuer:   s.issuer,
		Subject:  subject,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
