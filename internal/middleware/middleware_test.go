package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func signToken(t *testing.T, userID, role string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": "tester",
		"role":     role,
		"exp":      exp.Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func protectedEngine(roles ...string) *gin.Engine {
	r := gin.New()
	r.GET("/x", JWTAuth(testSecret), RequireRole(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, CallerID(c).String())
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_MissingToken(t *testing.T) {
	w := do(protectedEngine(RoleCashier), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication required")
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	tok := signToken(t, uuid.NewString(), RoleCashier, time.Now().Add(-time.Minute))
	assert.Equal(t, http.StatusUnauthorized, do(protectedEngine(RoleCashier), tok).Code)
}

func TestJWTAuth_NonUUIDSubjectRejected(t *testing.T) {
	tok := signToken(t, "not-a-uuid", RoleCashier, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, do(protectedEngine(RoleCashier), tok).Code)
}

func TestJWTAuth_ValidTokenExposesCaller(t *testing.T) {
	id := uuid.NewString()
	w := do(protectedEngine(RoleCashier), signToken(t, id, RoleCashier, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Body.String())
}

func TestRequireRole_Forbidden(t *testing.T) {
	tok := signToken(t, uuid.NewString(), RoleCashier, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusForbidden, do(protectedEngine(RoleAdmin, RoleManager), tok).Code)
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "tablet-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "tablet-42", w.Body.String())
}

func TestIPLimiter_WindowResets(t *testing.T) {
	now := time.Now()
	l := &ipLimiter{limit: 2, window: time.Minute, entries: map[string]*windowEntry{}, now: func() time.Time { return now }}

	ok, _ := l.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.allow("1.2.3.4")
	assert.False(t, ok)
	ok, _ = l.allow("5.6.7.8")
	assert.True(t, ok, "limits are per IP")

	now = now.Add(2 * time.Minute)
	ok, _ = l.allow("1.2.3.4")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	l.purge()
	assert.Empty(t, l.entries)
}

func TestRecovery_Returns500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}
