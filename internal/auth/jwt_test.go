package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims TokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func accessClaims(issuer string, expiresIn time.Duration) TokenClaims {
	now := time.Now()
	return TokenClaims{
		UserID:    "user-1",
		TenantID:  "tenant-1",
		Roles:     []string{"member"},
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(testSecret, "processhub", nil)
	ctx := context.Background()

	claims, err := svc.ValidateToken(ctx, signToken(t, testSecret, accessClaims("processhub", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)

	_, err = svc.ValidateToken(ctx, signToken(t, "other-secret", accessClaims("processhub", time.Hour)))
	assert.Error(t, err)

	_, err = svc.ValidateToken(ctx, signToken(t, testSecret, accessClaims("processhub", -time.Minute)))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = svc.ValidateToken(ctx, signToken(t, testSecret, accessClaims("someone-else", time.Hour)))
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	refresh := accessClaims("processhub", time.Hour)
	refresh.TokenType = "refresh"
	_, err = svc.ValidateToken(ctx, signToken(t, testSecret, refresh))
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("abc"))
	assert.Empty(t, ExtractTokenFromBearer(""))
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService(testSecret, "", nil)
	r := gin.New()
	r.Use(AuthMiddleware(svc))
	r.GET("/me", func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"userId": userCtx.UserID, "tenantId": userCtx.TenantID})
	})
	token := signToken(t, testSecret, accessClaims("", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "tenant-1", body["tenantId"])

	req = httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
