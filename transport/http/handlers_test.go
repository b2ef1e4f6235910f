package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/aegis/adapters/store"
	"github.com/phishguard/aegis/adapters/tokenizer"
	"github.com/phishguard/aegis/service"
)

type nopMail struct{}

func (nopMail) PublishVerificationMail(ctx context.Context, email, username, token string) error {
	return nil
}

func (nopMail) PublishPasswordResetMail(ctx context.Context, email, username, token string) error {
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tk := tokenizer.NewJWTTokenizer(key, 15*time.Minute, 7*24*time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewAuthService(store.NewMemoryStore(), tk, nopMail{}, logger, service.Config{})

	return SetupRouter(svc)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func registerAndLogin(t *testing.T, router *gin.Engine) (accessToken, refreshToken string) {
	t.Helper()

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/users/register", "", gin.H{
		"username": "alice", "email": "alice@x.com", "password": "pw12345678",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/users/login", "", gin.H{
		"email": "alice@x.com", "password": "pw12345678",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]any)
	return data["accessToken"].(string), data["refreshToken"].(string)
}

func TestRegisterEnvelope(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/users/register", "", gin.H{
		"username": "alice", "email": "alice@x.com", "password": "pw12345678",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate registration conflicts, with the stable error envelope.
	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/users/register", "", gin.H{
		"username": "alice", "email": "alice@x.com", "password": "pw12345678",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotEmpty(t, resp.Message)
}

func TestLoginAndCurrentUser(t *testing.T) {
	router := newTestRouter(t)
	access, _ := registerAndLogin(t, router)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/users/current-user", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]any)
	user := data["user"].(map[string]any)
	require.Equal(t, "alice", user["username"])
	// The password hash must never appear in a response.
	require.NotContains(t, user, "passwordHash")
	require.NotContains(t, user, "password_hash")
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/users/current-user", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, resp.Success)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/users/logout", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpointRotation(t *testing.T) {
	router := newTestRouter(t)
	_, refresh := registerAndLogin(t, router)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/users/refresh-access-token", "", gin.H{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	require.NotEmpty(t, data["accessToken"])
	require.NotEmpty(t, data["refreshToken"])

	// Replaying the rotated-away token is a 401, the refresh trigger code.
	rec, resp = doJSON(t, router, http.MethodPost, "/api/v1/users/refresh-access-token", "", gin.H{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, resp.Success)
}

func TestLogoutRevokes(t *testing.T) {
	router := newTestRouter(t)
	access, refresh := registerAndLogin(t, router)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/users/logout", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/v1/users/refresh-access-token", "", gin.H{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordAlwaysOK(t *testing.T) {
	router := newTestRouter(t)
	registerAndLogin(t, router)

	rec1, resp1 := doJSON(t, router, http.MethodPost, "/api/v1/users/forgot-password", "", gin.H{
		"email": "alice@x.com",
	})
	rec2, resp2 := doJSON(t, router, http.MethodPost, "/api/v1/users/forgot-password", "", gin.H{
		"email": "nobody@x.com",
	})

	require.Equal(t, http.StatusOK, rec1.Code)
	require.Equal(t, rec1.Code, rec2.Code)
	require.Equal(t, resp1.Message, resp2.Message)
}

func TestVerifyEmailBadToken(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/users/verify-email/bogus", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, resp.Success)
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/healthcheck", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
}
