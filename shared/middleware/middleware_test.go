package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, correlation.FromContext(c.Request.Context()))
	})
	return r
}

func TestCorrelationMiddleware(t *testing.T) {
	router := newTestRouter(CorrelationMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(correlation.HeaderName, "given-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Body.String())
	assert.Equal(t, "given-id", w.Header().Get(correlation.HeaderName))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Body.String()
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Header().Get(correlation.HeaderName))
}

func TestLoggingMiddleware_CarriesCorrelationID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := newTestRouter(CorrelationMiddleware(), LoggingMiddleware(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(correlation.HeaderName, "log-id")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "log-id", entry.ContextMap()[correlation.LogField])
	assert.Equal(t, int64(http.StatusOK), entry.ContextMap()["status"])
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	sign := func(key []byte, exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID:           "usr-001",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
		})
		s, err := token.SignedString(key)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name           string
		secret         []byte
		header         string
		expectedStatus int
	}{
		{name: "disabled when no secret", secret: nil, header: "", expectedStatus: http.StatusOK},
		{name: "missing header", secret: secret, header: "", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", secret: secret, header: "Basic abc", expectedStatus: http.StatusUnauthorized},
		{name: "valid token", secret: secret, header: "Bearer " + sign(secret, time.Now().Add(time.Hour)), expectedStatus: http.StatusOK},
		{name: "expired token", secret: secret, header: "Bearer " + sign(secret, time.Now().Add(-time.Hour)), expectedStatus: http.StatusUnauthorized},
		{name: "foreign signature", secret: secret, header: "Bearer " + sign([]byte("other"), time.Now().Add(time.Hour)), expectedStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(AuthMiddleware(tt.secret))
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		Type   string          `validate:"required,txtype"`
		Amount decimal.Decimal `validate:"required,gt=0"`
	}

	assert.Nil(t, ValidateRequest(request{Type: "debit", Amount: decimal.NewFromInt(10)}))

	errs := ValidateRequest(request{Type: "TRANSFER", Amount: decimal.NewFromInt(-1)})
	require.Len(t, errs, 2)
	assert.Equal(t, "txtype", errs[0].Type)
	assert.Equal(t, "gt", errs[1].Type)

	errs = ValidateRequest(request{Type: "CREDIT"})
	require.Len(t, errs, 1)
	assert.Equal(t, "required", errs[0].Type)
}
