package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFetchToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, &key.PublicKey, "kid-1")
	defer srv.Close()

	verifier := newTestVerifier(NewJWKSKeyProvider(srv.URL))
	tokens := NewTokenService([]byte(testSecret), testIssuer, []string{testAudience})
	h := NewHandler(verifier, tokens)

	appleToken := signApple(t, key, "kid-1", appleClaims(nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/token", nil)
	req.Header.Set("Authorization", "Bearer "+appleToken)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.FetchToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	access := body["access_token"]
	if access == "" {
		t.Fatal("expected access_token in response")
	}

	// The minted token must round-trip through the self-issued verifier and
	// carry the Apple subject.
	userinfo, err := verifier.VerifySelfIssued(access)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if userinfo.ID != "apple-user-1" {
		t.Errorf("expected subject apple-user-1, got %s", userinfo.ID)
	}
}

func TestFetchToken_RejectsBadCredentials(t *testing.T) {
	verifier := newTestVerifier(NewJWKSKeyProvider("http://127.0.0.1:0"))
	tokens := NewTokenService([]byte(testSecret), testIssuer, []string{testAudience})
	h := NewHandler(verifier, tokens)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/auth/token", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.FetchToken(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
		})
	}
}
