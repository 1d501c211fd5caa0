package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/config"
	"github.com/Ramsey-B/tally/internal/app"
	"github.com/Ramsey-B/tally/pkg/middleware"
)

const referenceFile = `
geo_units:
  - {id: north, level: region, name: Northern}
polling_stations:
  - {id: ps-1, election_id: e-1, name: One, region_id: north, constituency_id: c-1, electoral_area_id: a-1}
candidates:
  - {id: cand-a, election_id: e-1, position_id: president, name: Ama}
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	seedFile := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(referenceFile), 0o600))

	return config.Config{
		AppName:                  "tally-test",
		Environment:              "test",
		StoreDriver:              config.StoreDriverMemory,
		TracingExporter:          "none",
		AllowOrigins:             []string{"*"},
		AllowMethods:             []string{http.MethodGet, http.MethodPost, http.MethodPut},
		StartupMaxAttempts:       1,
		SeedFile:                 seedFile,
		DashboardCacheTTLSeconds: 5,
		ActivityFeedDefaultLimit: 50,
		ActivityFeedMaxLimit:     500,
	}
}

func startApp(t *testing.T) http.Handler {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	a := app.New(testConfig(t), logger)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a.Handler()
}

func request(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data := []byte(nil)
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "official-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_HealthAndMetrics(t *testing.T) {
	h := startApp(t)

	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/api/v1/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/api/v1/health/ready", nil).Code)

	rec := request(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_SeededElectionEndToEnd(t *testing.T) {
	h := startApp(t)

	rec := request(t, h, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{"polling_station_id": "ps-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sheet map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sheet))
	id := sheet["id"].(string)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = request(t, h, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": 1,
		"entries": []map[string]any{{"position_id": "president", "candidate_id": "cand-a", "votes": 42}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	version := 2
	for _, action := range []string{"submit", "verify", "approve", "certify"} {
		rec = request(t, h, http.MethodPost, "/api/v1/sheets/"+id+"/"+action, map[string]any{"version": version})
		require.Equal(t, http.StatusOK, rec.Code, action+": "+rec.Body.String())
		version++
	}

	rec = request(t, h, http.MethodGet, "/api/v1/elections/e-1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Summary struct {
			TotalStations        int     `json:"total_stations"`
			Completed            int     `json:"completed"`
			CompletionPercentage float64 `json:"completion_percentage"`
		} `json:"summary"`
		TopCandidates []struct {
			CandidateID string `json:"candidate_id"`
			Name        string `json:"name"`
			Votes       int    `json:"votes"`
		} `json:"top_candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	assert.Equal(t, 1, board.Summary.TotalStations)
	assert.Equal(t, 1, board.Summary.Completed)
	assert.Equal(t, float64(100), board.Summary.CompletionPercentage)
	require.Len(t, board.TopCandidates, 1)
	assert.Equal(t, "Ama", board.TopCandidates[0].Name)
	assert.Equal(t, 42, board.TopCandidates[0].Votes)

	rec = request(t, h, http.MethodGet, "/api/v1/elections/e-1/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed, 4)
	assert.Equal(t, "certified", feed[0]["action"])
}

func TestApp_StartFailsOnBadSeedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	a := app.New(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	err := a.Start(context.Background())
	require.Error(t, err)
	_ = a.Stop(context.Background())
}
