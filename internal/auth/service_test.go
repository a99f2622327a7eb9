package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	hash, err := HashSecret("correct-horse-battery-staple")
	require.NoError(t, err)

	svc := NewService("jwt-signing-secret", hash)

	token, err := svc.IssueToken("correct-horse-battery-staple")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}

func TestIssueTokenRejectsWrongSecret(t *testing.T) {
	hash, err := HashSecret("correct-horse-battery-staple")
	require.NoError(t, err)
	svc := NewService("jwt-signing-secret", hash)

	_, err = svc.IssueToken("wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestValidateTokenRejectsForeignSigningKey(t *testing.T) {
	hash, _ := HashSecret("s")
	svc := NewService("jwt-signing-secret", hash)
	other := NewService("different-secret", hash)

	token, err := other.IssueToken("s")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireBearerMiddleware(t *testing.T) {
	hash, _ := HashSecret("s")
	svc := NewService("jwt-signing-secret", hash)
	token, _ := svc.IssueToken("s")

	called := false
	handler := svc.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "admin", claims.Role)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/processes/1/kill", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireBearerMiddlewareRejectsMissingHeader(t *testing.T) {
	hash, _ := HashSecret("s")
	svc := NewService("jwt-signing-secret", hash)

	handler := svc.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/processes/1/kill", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
