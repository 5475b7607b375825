package session_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/p-n-ai/pai-course/internal/session"
)

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := session.NewVerifier("", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifier_RoundTrip(t *testing.T) {
	v, _ := session.NewVerifier("secret", "auth.example.com")

	token, err := v.Issue(session.Session{UserID: "u1", Email: "u1@example.com", Role: "learner"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	s, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if s.UserID != "u1" || s.Email != "u1@example.com" || s.Role != "learner" {
		t.Errorf("Verify() = %+v", s)
	}
	if s.ExpiresAt.Before(time.Now()) {
		t.Errorf("ExpiresAt = %v, want in the future", s.ExpiresAt)
	}
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestVerifier_Rejects(t *testing.T) {
	v, _ := session.NewVerifier("secret", "auth.example.com")
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "u1", Issuer: "auth.example.com", ExpiresAt: future})},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "u1", Issuer: "auth.example.com", ExpiresAt: past})},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Issuer: "auth.example.com", ExpiresAt: future})},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "u1", Issuer: "elsewhere", ExpiresAt: future})},
		{"none alg", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "u1", Issuer: "auth.example.com", ExpiresAt: future})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, session.ErrUnauthenticated) {
				t.Errorf("Verify() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v, _ := session.NewVerifier("secret", "")
	valid, _ := v.Issue(session.Session{UserID: "u1"}, time.Hour)

	var gotUser string
	handler := session.Middleware(v, func(w http.ResponseWriter, _ *http.Request, err error) {
		if !errors.Is(err, session.ErrUnauthenticated) {
			t.Errorf("onFail error = %v, want ErrUnauthenticated", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok {
			t.Error("session missing from context")
		}
		gotUser = s.UserID
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic dTE6cGFzcw==", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/courses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && gotUser != "u1" {
				t.Errorf("user = %q, want u1", gotUser)
			}
		})
	}
}
