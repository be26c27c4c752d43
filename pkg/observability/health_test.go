package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "test")

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "test", status.Version)
}

func TestReadiness(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(db, client, "test")

	t.Run("all healthy", func(t *testing.T) {
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		mr.SetError("LOADING")
		defer mr.SetError("")

		status := checker.Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down is unavailable", func(t *testing.T) {
		mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Contains(t, status.Dependencies["database"].Message, "connection refused")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShutdownManagerRunsClosers(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	closed := make(chan string, 2)
	sm.Register("database", func(context.Context) error {
		closed <- "database"
		return nil
	})
	sm.Register("cache", func(context.Context) error {
		closed <- "cache"
		return errors.New("already closed")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: already closed")
	assert.Len(t, closed, 2)
}

func TestShutdownManagerOnContextCancel(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), &http.Server{Addr: "127.0.0.1:0"}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
}
