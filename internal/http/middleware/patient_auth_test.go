package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/dentbot/internal/tenancy"
)

func TestPatientJWTDisabledWithoutSecret(t *testing.T) {
	mw := PatientJWT("")
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/messages", nil)
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := tenancy.PatientIDFromContext(r.Context()); ok {
			t.Fatalf("expected anonymous request")
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
}

func TestPatientJWTMissingHeader(t *testing.T) {
	mw := PatientJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestPatientJWTInvalidToken(t *testing.T) {
	mw := PatientJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "wrong", "patient-1", time.Now().Add(5*time.Minute)))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestPatientJWTExpiredToken(t *testing.T) {
	mw := PatientJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "secret", "patient-1", time.Now().Add(-time.Minute)))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestPatientJWTMissingSubject(t *testing.T) {
	mw := PatientJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "secret", "", time.Now().Add(time.Minute)))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestPatientJWTValidToken(t *testing.T) {
	mw := PatientJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "secret", "patient-42", time.Now().Add(5*time.Minute)))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		patientID, ok := tenancy.PatientIDFromContext(r.Context())
		if !ok || patientID != "patient-42" {
			t.Fatalf("expected patient-42 in context, got %q", patientID)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestPatientJWTQueryToken(t *testing.T) {
	mw := PatientJWT("secret")
	token := signedPatientToken(t, "secret", "patient-7", time.Now().Add(time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/v1/chat/ws?access_token="+token, nil)
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected query token to be accepted, got %d", rec.Code)
	}
}

func signedPatientToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAdminJWTMissingSecret(t *testing.T) {
	mw := AdminJWT("")
	req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	mw := AdminJWT("ops-secret")
	req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "ops-secret", "operator", time.Now().Add(time.Minute)))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok || claims.Subject != "operator" {
			t.Fatalf("expected admin claims in context, got %#v", claims)
		}
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called, got %d", rec.Code)
	}
}

func TestAdminJWTRejectsPatientSecret(t *testing.T) {
	mw := AdminJWT("ops-secret")
	req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+signedPatientToken(t, "patient-secret", "patient-1", time.Now().Add(time.Minute)))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
