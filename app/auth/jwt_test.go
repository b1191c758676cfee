package auth

import (
	"testing"

	"pic-fusion/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(secret string) *JWTService {
	return NewJWTService(&config.Config{
		JWT: config.JWTConfig{
			Secret:     secret,
			ExpireTime: 24,
			Issuer:     "pic-fusion",
		},
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestJWTService("test-secret")

	token, err := svc.GenerateToken(1, "admin", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(1), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "pic-fusion", claims.Issuer)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := newTestJWTService("secret-a").GenerateToken(1, "admin", true)
	require.NoError(t, err)

	_, err = newTestJWTService("secret-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestRefreshTokenNotNearExpiry(t *testing.T) {
	svc := newTestJWTService("test-secret")

	// 剩余有效期 24 小时，远超刷新窗口
	token, err := svc.GenerateToken(1, "admin", false)
	require.NoError(t, err)

	_, err = svc.RefreshToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "无需刷新")
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{"", "abc", "Bearer", "Bearer ", "Basic abc"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, "不应接受格式错误的请求头: %q", header)
	}
}
