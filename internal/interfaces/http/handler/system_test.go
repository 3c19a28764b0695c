package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *SystemHandler) (int, dto.Response, map[string]any) {
	t.Helper()
	engine := gin.New()
	h.RegisterRoutes(&engine.RouterGroup)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	return w.Code, resp, data
}

func TestSystemHandler_Healthy(t *testing.T) {
	h := NewSystemHandler("1.2.0", map[string]Pinger{
		"database": PingFunc(func() error { return nil }),
	})

	code, resp, data := serveHealth(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.Equal(t, map[string]any{"database": "ok"}, data["checks"])
}

func TestSystemHandler_Degraded(t *testing.T) {
	h := NewSystemHandler("1.2.0", map[string]Pinger{
		"database": PingFunc(func() error { return nil }),
		"redis":    PingFunc(func() error { return errors.New("connection refused") }),
	})

	code, resp, data := serveHealth(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "degraded", data["status"])
	checks := data["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestContextPing_Timeout(t *testing.T) {
	ping := ContextPing(10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, ping.Ping(), context.DeadlineExceeded)
}
