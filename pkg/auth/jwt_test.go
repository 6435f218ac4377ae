package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "taskhive"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)

	signed := signToken(t, testSecret, jwt.MapClaims{
		"iss":    testIssuer,
		"sub":    "crud-api",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{"scheduler:trigger"},
	})

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "crud-api", claims.Subject)
	assert.Equal(t, []string{"scheduler:trigger"}, claims.Scopes)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)

	signed := signToken(t, "other-secret", jwt.MapClaims{
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)

	signed := signToken(t, testSecret, jwt.MapClaims{
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)

	signed := signToken(t, testSecret, jwt.MapClaims{
		"iss": testIssuer,
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenRejectsMissingExpiry(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)

	signed := signToken(t, testSecret, jwt.MapClaims{
		"iss": testIssuer,
	})

	_, err := svc.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewJWTService(testSecret, testIssuer)
	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
