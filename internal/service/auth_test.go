package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
)

func TestAuthService_Login(t *testing.T) {
	disabled := NewAuthService(config.AuthConfig{Issuer: "Quill"}, zap.NewNop())
	assert.False(t, disabled.Enabled())
	_, ok := disabled.Login("123456")
	assert.False(t, ok)

	secret, url, err := disabled.GenerateSecret("ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/")

	auth := NewAuthService(config.AuthConfig{TOTPSecret: secret, Issuer: "Quill", SessionTTL: time.Hour}, zap.NewNop())
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	session, ok := auth.Login(code)
	require.True(t, ok)
	assert.True(t, auth.isValidSession(session))

	_, ok = auth.Login("000000x")
	assert.False(t, ok)

	auth.RevokeSession(session)
	assert.False(t, auth.isValidSession(session))
}

func TestAuthService_SessionExpires(t *testing.T) {
	auth := NewAuthService(config.AuthConfig{TOTPSecret: "JBSWY3DPEHPK3PXP", SessionTTL: time.Minute}, zap.NewNop())
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return current }

	session := auth.CreateSession()
	assert.True(t, auth.isValidSession(session))

	current = current.Add(2 * time.Minute)
	assert.False(t, auth.isValidSession(session))
}

func TestAuthService_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthService(config.AuthConfig{TOTPSecret: "JBSWY3DPEHPK3PXP", SessionTTL: time.Hour}, zap.NewNop())
	session := auth.CreateSession()

	router := gin.New()
	router.Use(auth.AuthMiddleware())
	router.GET("/api/v1/targets", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		method string
		path   string
		header string
		cookie string
		want   int
	}{
		{"NoCredentials", http.MethodGet, "/api/v1/targets", "", "", http.StatusUnauthorized},
		{"BearerToken", http.MethodGet, "/api/v1/targets", "Bearer " + session, "", http.StatusOK},
		{"Cookie", http.MethodGet, "/api/v1/targets", "", session, http.StatusOK},
		{"UnknownToken", http.MethodGet, "/api/v1/targets", "Bearer nope", "", http.StatusUnauthorized},
		{"LoginIsOpen", http.MethodPost, "/api/v1/auth/login", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
