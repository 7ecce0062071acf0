package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/redis"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func healthRouter(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestLiveness(t *testing.T) {
	failing := NamedCheck("database", func(ctx context.Context) error { return errors.New(errors.ErrCodeDatabaseError, "down") })
	rec := get(healthRouter(NewHealthHandler("v1.2.3", failing)), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestReadiness_NoCheckers(t *testing.T) {
	rec := get(healthRouter(NewHealthHandler("dev")), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadiness_AllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	h := NewHealthHandler("dev",
		NamedCheck("redis", client.HealthCheck),
		NamedCheck("state", func(ctx context.Context) error { return nil }),
	)
	rec := get(healthRouter(h), "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
	assert.Equal(t, "healthy", resp.Components["state"].Status)
}

func TestReadiness_OneUnhealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		NamedCheck("database", func(ctx context.Context) error { return nil }),
		NamedCheck("state", func(ctx context.Context) error {
			return errors.New(errors.ErrCodeServiceUnavailable, "index state not loaded")
		}),
	)
	rec := get(healthRouter(h), "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "unhealthy", resp.Components["state"].Status)
	assert.Contains(t, resp.Components["state"].Error, "index state not loaded")
}
