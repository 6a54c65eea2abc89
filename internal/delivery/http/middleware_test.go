package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfwatch/backend/internal/logger"
)

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		allowedOrigins []string
		want           bool
	}{
		{
			name:           "exact match",
			origin:         "https://review.shelfwatch.io",
			allowedOrigins: []string{"https://review.shelfwatch.io"},
			want:           true,
		},
		{
			name:           "wildcard match",
			origin:         "http://localhost:5173",
			allowedOrigins: []string{"http://localhost:*"},
			want:           true,
		},
		{
			name:           "multiple allowed origins - matches second",
			origin:         "http://localhost:3000",
			allowedOrigins: []string{"https://review.shelfwatch.io", "http://localhost:3000"},
			want:           true,
		},
		{
			name:           "no match",
			origin:         "http://evil.com",
			allowedOrigins: []string{"https://review.shelfwatch.io"},
			want:           false,
		},
		{
			name:           "empty origin",
			origin:         "",
			allowedOrigins: []string{"*"},
			want:           false,
		},
		{
			name:           "empty allowed list",
			origin:         "https://review.shelfwatch.io",
			allowedOrigins: []string{},
			want:           false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isAllowedOrigin(tt.origin, tt.allowedOrigins)
			if got != tt.want {
				t.Errorf("isAllowedOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantCORS   bool
	}{
		{name: "allowed origin - GET request", origin: "http://localhost:3000", method: "GET", wantStatus: http.StatusOK, wantCORS: true},
		{name: "allowed origin - OPTIONS request", origin: "http://localhost:3000", method: "OPTIONS", wantStatus: http.StatusNoContent, wantCORS: true},
		{name: "disallowed origin", origin: "http://evil.com", method: "GET", wantStatus: http.StatusOK, wantCORS: false},
		{name: "no origin header", origin: "", method: "GET", wantStatus: http.StatusOK, wantCORS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CORSMiddleware([]string{"http://localhost:*"}))
			router.GET("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "OK")
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}

			corsHeader := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantCORS {
				if corsHeader != tt.origin {
					t.Errorf("Access-Control-Allow-Origin = %s, want %s", corsHeader, tt.origin)
				}
				if w.Header().Get("Access-Control-Max-Age") == "" {
					t.Errorf("Access-Control-Max-Age not set")
				}
			} else if corsHeader != "" {
				t.Errorf("Access-Control-Allow-Origin should not be set, got %s", corsHeader)
			}
		})
	}
}

func signToken(t *testing.T, secret, sub string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Sub: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "review-secret"

	tests := []struct {
		name         string
		secret       string
		production   bool
		header       func(t *testing.T) map[string]string
		wantStatus   int
		wantReviewer string
	}{
		{
			name:   "valid token",
			secret: secret,
			header: func(t *testing.T) map[string]string {
				return map[string]string{"Authorization": "Bearer " + signToken(t, secret, "ana", time.Now().Add(time.Hour))}
			},
			wantStatus:   http.StatusOK,
			wantReviewer: "ana",
		},
		{
			name:       "missing header",
			secret:     secret,
			header:     func(*testing.T) map[string]string { return nil },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "wrong secret",
			secret: secret,
			header: func(t *testing.T) map[string]string {
				return map[string]string{"Authorization": "Bearer " + signToken(t, "other", "ana", time.Now().Add(time.Hour))}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "expired token",
			secret: secret,
			header: func(t *testing.T) map[string]string {
				return map[string]string{"Authorization": "Bearer " + signToken(t, secret, "ana", time.Now().Add(-time.Hour))}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "malformed header",
			secret: secret,
			header: func(*testing.T) map[string]string {
				return map[string]string{"Authorization": "Token abc"}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "no secret in development trusts header",
			secret: "",
			header: func(*testing.T) map[string]string {
				return map[string]string{devReviewerHeader: "ben"}
			},
			wantStatus:   http.StatusOK,
			wantReviewer: "ben",
		},
		{
			name:       "no secret in production",
			secret:     "",
			production: true,
			header:     func(*testing.T) map[string]string { return nil },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/decide", AuthMiddleware(tt.secret, tt.production), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"reviewer": reviewerFrom(c)})
			})

			req := httptest.NewRequest(http.MethodPost, "/decide", nil)
			for k, v := range tt.header(t) {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantReviewer == "" {
				return
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if body["reviewer"] != tt.wantReviewer {
				t.Errorf("reviewer = %q, want %q", body["reviewer"], tt.wantReviewer)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryMiddleware(logger.NewNop()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware(logger.NewNop()))
	router.GET("/id", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got != "req-123" {
			t.Errorf("X-Request-ID = %q, want req-123", got)
		}
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))

		if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
			t.Errorf("X-Request-ID = %q, want a uuid", got)
		}
	})
}
