package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	// ErrSignatureValidation is the single error surfaced for any token
	// decode, signature or claim failure. Callers only ever learn that
	// verification failed, never which check tripped.
	ErrSignatureValidation = errors.New("token signature validation failed")
	// ErrKeyNotFound means the token's kid is absent from the provider key set.
	ErrKeyNotFound = errors.New("signing key not found")
)

// UserInfo is the verified caller identity. Reconstructed per request, never
// persisted.
type UserInfo struct {
	ID string
}

// Verifier validates bearer tokens on both trust paths: tokens this service
// issued itself (HS256, shared secret) and Apple-issued OpenID tokens (RS256,
// JWKS).
type Verifier struct {
	secret      []byte
	issuer      string
	appleIssuer string
	audiences   []string
	keys        KeyProvider
	log         zerolog.Logger
}

func NewVerifier(secret []byte, issuer, appleIssuer string, audiences []string, keys KeyProvider, log zerolog.Logger) *Verifier {
	return &Verifier{
		secret:      secret,
		issuer:      issuer,
		appleIssuer: appleIssuer,
		audiences:   audiences,
		keys:        keys,
		log:         log,
	}
}

// VerifySelfIssued validates a token minted by this service. Issuer and
// audience are checked; expiry deliberately is not — self-issued tokens are
// treated as long-lived and remain valid past their exp claim.
func (v *Verifier) VerifySelfIssued(token string) (*UserInfo, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		v.log.Warn().Err(err).Msg("self-issued token verification failed")
		return nil, ErrSignatureValidation
	}

	if claims.Issuer != v.issuer {
		v.log.Warn().Str("iss", claims.Issuer).Msg("self-issued token has wrong issuer")
		return nil, ErrSignatureValidation
	}
	if !v.audienceAllowed(claims.Audience) {
		v.log.Warn().Strs("aud", claims.Audience).Msg("self-issued token has wrong audience")
		return nil, ErrSignatureValidation
	}

	return &UserInfo{ID: claims.Subject}, nil
}

// VerifyApple validates an Apple-issued OpenID token: RS256 against the
// provider key set, with iat, nbf, exp, iss and aud all enforced.
func (v *Verifier) VerifyApple(token string) (*UserInfo, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.Key(kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.appleIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		v.log.Warn().Err(err).Msg("openid token verification failed")
		return nil, ErrSignatureValidation
	}

	if !v.audienceAllowed(claims.Audience) {
		v.log.Warn().Strs("aud", claims.Audience).Msg("openid token has wrong audience")
		return nil, ErrSignatureValidation
	}

	return &UserInfo{ID: claims.Subject}, nil
}

func (v *Verifier) audienceAllowed(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		for _, allowed := range v.audiences {
			if a == allowed {
				return true
			}
		}
	}
	return false
}
