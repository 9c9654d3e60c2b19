package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/requestdata"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, userID, sessionID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"sid": sessionID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter(t *testing.T) (*gin.Engine, *requestdata.RequestData) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	captured := &requestdata.RequestData{}
	router := gin.New()
	router.Use(NewAuthMiddleware(log, testSecret).RequireAuth())
	router.GET("/protected", func(c *gin.Context) {
		if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
			*captured = *rd
		}
		c.String(http.StatusOK, "ok")
	})
	return router, captured
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	router, captured := newAuthRouter(t)
	userID, sessionID := uuid.New(), uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, userID, sessionID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != userID || captured.SessionID != sessionID {
		t.Fatalf("request data not propagated: %+v", captured)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	router, captured := newAuthRouter(t)
	userID := uuid.New()

	token := signToken(t, testSecret, userID, uuid.New())
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if captured.UserID != userID {
		t.Fatalf("request data not propagated: %+v", captured)
	}
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	router, _ := newAuthRouter(t)

	cases := map[string]func(*http.Request){
		"no token":     func(r *http.Request) {},
		"garbage":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") },
		"wrong secret": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", uuid.New(), uuid.New())) },
		"non-uuid sub": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signWithSub(t, "not-a-uuid")) },
	}
	for name, arm := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		arm(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: want 401, got %d", name, rec.Code)
		}
	}
}

func signWithSub(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
