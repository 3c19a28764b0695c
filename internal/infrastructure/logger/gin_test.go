package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGinMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("request_id", "req-1") })
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/voucher-exports/:id", func(c *gin.Context) {
		assert.Equal(t, "req-1", GetRequestID(c.Request.Context()))
		GetGinLogger(c).Info("handler")
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/voucher-exports/abc?verbose=1", nil))

	require.Equal(t, 2, recorded.Len())
	access := recorded.All()[1]
	assert.Equal(t, "HTTP Request", access.Message)
	assert.Equal(t, zapcore.WarnLevel, access.Level)
	fields := access.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "verbose=1", fields["query"])
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INTERNAL")
	assert.Equal(t, 1, recorded.Len())
}

func TestGetGinLogger_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}

func TestGinMiddleware_TenantFromJWT(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/voucher-exports", func(c *gin.Context) {
		c.Set(tenantIDKey, "tenant-1")
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/voucher-exports", nil))

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "tenant-1", recorded.All()[0].ContextMap()["tenant_id"])
}
