package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, secret []byte, homeID, role string) string {
	t.Helper()
	claims := Claims{
		HomeID: homeID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestMiddleware() *Middleware {
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	return NewMiddleware(testSecret, policy)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_MissingToken(t *testing.T) {
	handler := newTestMiddleware().Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_WrongSecret(t *testing.T) {
	handler := newTestMiddleware().Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, []byte("other-secret"), "HOME_01", "resident"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_RoleEnforcement(t *testing.T) {
	handler := newTestMiddleware().Wrap(okHandler())

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"resident reads history", http.MethodGet, "/api/v1/readings", "resident", http.StatusOK},
		{"resident cannot command", http.MethodPost, "/api/v1/commands", "resident", http.StatusForbidden},
		{"operator commands", http.MethodPost, "/api/v1/commands", "operator", http.StatusOK},
		{"operator cannot register devices", http.MethodPut, "/api/v1/devices/AIR_HOME_01", "operator", http.StatusForbidden},
		{"admin registers devices", http.MethodPut, "/api/v1/devices/AIR_HOME_01", "admin", http.StatusOK},
		{"operator cannot pull reports", http.MethodGet, "/api/v1/reports/daily.pdf", "operator", http.StatusForbidden},
		{"admin pulls reports", http.MethodGet, "/api/v1/reports/daily.pdf", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+mustToken(t, testSecret, "HOME_01", tc.role))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestMiddleware_ExemptPaths(t *testing.T) {
	handler := newTestMiddleware().Wrap(okHandler())

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected %s exempt, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_IdentityInContext(t *testing.T) {
	var gotHome string
	var gotRole Role
	var gotSubject string
	handler := newTestMiddleware().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHome = HomeIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, testSecret, "HOME_05", "resident"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotHome != "HOME_05" || gotRole != RoleResident || gotSubject != "user-1" {
		t.Fatalf("unexpected identity: home=%q role=%q subject=%q", gotHome, gotRole, gotSubject)
	}
}

func TestMiddleware_QueryTokenFallback(t *testing.T) {
	handler := newTestMiddleware().Wrap(okHandler())

	token := mustToken(t, testSecret, "HOME_01", "resident")
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
}

func TestParseJWT_ClaimValidation(t *testing.T) {
	t.Run("admin may omit home", func(t *testing.T) {
		claims, err := ParseJWT(mustToken(t, testSecret, "", "admin"), testSecret)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if claims.Role != "admin" {
			t.Fatalf("unexpected role %q", claims.Role)
		}
	})
	t.Run("resident requires home", func(t *testing.T) {
		if _, err := ParseJWT(mustToken(t, testSecret, "", "resident"), testSecret); err == nil {
			t.Fatal("expected error for resident without home_id")
		}
	})
	t.Run("unknown role rejected", func(t *testing.T) {
		if _, err := ParseJWT(mustToken(t, testSecret, "HOME_01", "superuser"), testSecret); err == nil {
			t.Fatal("expected error for unknown role")
		}
	})
	t.Run("expired token rejected", func(t *testing.T) {
		claims := Claims{
			HomeID: "HOME_01",
			Role:   "resident",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := ParseJWT(token, testSecret); err == nil {
			t.Fatal("expected error for expired token")
		}
	})
}
