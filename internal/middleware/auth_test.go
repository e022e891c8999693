package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func mintToken(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, _ := json.Marshal(claims)
	data := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	return data + "." + hmacSign(secret, data)
}

func TestVerifySessionToken(t *testing.T) {
	token := mintToken(t, testJWTSecret, SessionClaims{
		Sub:   "u-123",
		Email: "user@example.com",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	claims, err := VerifySessionToken(testJWTSecret, token)
	if err != nil {
		t.Fatalf("VerifySessionToken returned error: %v", err)
	}
	if claims.Sub != "u-123" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifySessionTokenRejectsWrongSecret(t *testing.T) {
	token := mintToken(t, "other-secret", SessionClaims{Sub: "u-123", Exp: time.Now().Add(time.Hour).Unix()})
	if _, err := VerifySessionToken(testJWTSecret, token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestVerifySessionTokenRejectsExpired(t *testing.T) {
	token := mintToken(t, testJWTSecret, SessionClaims{Sub: "u-123", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifySessionToken(testJWTSecret, token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestSessionAuthMiddleware(t *testing.T) {
	var gotUser, gotEmail string
	handler := SessionAuth(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotEmail = UserEmailFromContext(r.Context())
	}))

	token := mintToken(t, testJWTSecret, SessionClaims{
		Sub:   "u-456",
		Email: "who@example.com",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "u-456" || gotEmail != "who@example.com" {
		t.Fatalf("context not populated: user=%q email=%q", gotUser, gotEmail)
	}
}

func TestSessionAuthRejectsMissingHeader(t *testing.T) {
	handler := SessionAuth(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
