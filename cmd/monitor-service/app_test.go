package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smssim/internal/config"
	"smssim/internal/logger"
	"smssim/internal/monitor"
	"smssim/internal/stats"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	store, err := stats.NewStore(stats.NewMemoryKV(), "sms_simulator_stats", stats.PolicyReadModifyWrite)
	require.NoError(t, err)

	app := &App{
		config:  &config.Config{},
		logger:  logger.NopLogger(),
		monitor: monitor.New(store, time.Second, logger.NopLogger()),
	}
	app.initRouter(context.Background())
	return app
}

func TestApp_ServesAPIDocs(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1", doc["basePath"])

	paths, ok := doc["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/stats")
}

func TestApp_StatsRouteMatchesDocs(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats?fresh=true", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
