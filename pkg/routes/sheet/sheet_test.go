package sheet_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/internal/repositories/memory"
	"github.com/Ramsey-B/tally/internal/services/collation"
	"github.com/Ramsey-B/tally/pkg/middleware"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/routes/sheet"
)

func setupServer(t *testing.T) *echo.Echo {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := memory.NewStore()
	require.NoError(t, store.Reference().UpsertStations(context.Background(), []models.PollingStation{
		{ID: "ps-1", ElectionID: "e-1", Name: "One", RegionID: "north", ConstituencyID: "c-1", ElectoralAreaID: "a-1"},
	}))

	service := collation.NewService(collation.Dependencies{
		Tx:        store,
		Sheets:    store.Sheets(),
		Entries:   store.Entries(),
		Activity:  store.Activity(),
		Reference: store.Reference(),
		Logger:    logger,
	})

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.TestAuth())
	sheet.NewHandler(service).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.HeaderUserID, "official-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func openSheet(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{"polling_station_id": "ps-1"})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func TestOpen_CreatedThenExisting(t *testing.T) {
	e := setupServer(t)

	rec := do(t, e, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{"polling_station_id": "ps-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, "draft", first["status"])
	assert.EqualValues(t, 1, first["version"])
	assert.Equal(t, []any{"submit"}, first["allowed_actions"])

	rec = do(t, e, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{"polling_station_id": "ps-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first["id"], decode(t, rec)["id"])

	rec = do(t, e, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/elections/e-1/sheets", map[string]any{"polling_station_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntriesTotalsAndPipeline(t *testing.T) {
	e := setupServer(t)
	id := openSheet(t, e)

	rec := do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/totals", map[string]any{"version": 1, "total_valid_votes": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": 2,
		"entries": []map[string]any{
			{"position_id": "president", "candidate_id": "cand-a", "votes": 70},
			{"position_id": "president", "candidate_id": "cand-b", "votes": 50},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["version"])
	report := body["consistency"].(map[string]any)
	assert.Equal(t, true, report["discrepancy"])
	assert.EqualValues(t, 20, report["delta"])

	rec = do(t, e, http.MethodGet, "/api/v1/sheets/"+id+"/consistency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 120, decode(t, rec)["calculated_total"])

	rec = do(t, e, http.MethodGet, "/api/v1/sheets/"+id+"/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	version := 3
	for _, action := range []string{"submit", "verify", "approve", "certify"} {
		rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/"+action, map[string]any{"version": version})
		require.Equal(t, http.StatusOK, rec.Code, action+": "+rec.Body.String())
		version++
	}
	body = decode(t, rec)
	assert.Equal(t, "certified", body["sheet"].(map[string]any)["status"])
	assert.Equal(t, "certified", body["event"].(map[string]any)["action"])

	rec = do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": version,
		"entries": []map[string]any{{"candidate_id": "cand-a", "votes": 1}},
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "SheetLocked", decode(t, rec)["meta"].(map[string]any)["kind"])

	rec = do(t, e, http.MethodGet, "/api/v1/sheets/"+id+"/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 4)
	assert.Equal(t, "certified", history[0]["action"])
}

func TestBulkAddEntries_ErrorMapping(t *testing.T) {
	e := setupServer(t)
	id := openSheet(t, e)

	rec := do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": 1,
		"entries": []map[string]any{
			{"candidate_id": "cand-a", "votes": 10},
			{"candidate_id": "cand-b", "votes": -3},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	meta := decode(t, rec)["meta"].(map[string]any)
	assert.Equal(t, "InvalidVoteCount", meta["kind"])
	assert.EqualValues(t, 1, meta["entry_index"])

	rec = do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": 7,
		"entries": []map[string]any{{"candidate_id": "cand-a", "votes": 10}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	meta = decode(t, rec)["meta"].(map[string]any)
	assert.Equal(t, "StaleState", meta["kind"])
	assert.EqualValues(t, 1, meta["current_version"])

	rec = do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"entries": []map[string]any{{"candidate_id": "cand-a", "votes": 10}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/v1/sheets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReject(t *testing.T) {
	e := setupServer(t)
	id := openSheet(t, e)

	rec := do(t, e, http.MethodPut, "/api/v1/sheets/"+id+"/entries", map[string]any{
		"version": 1,
		"entries": []map[string]any{{"candidate_id": "cand-a", "votes": 10}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/submit", map[string]any{"version": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/reject", map[string]any{"version": 3, "reason": "bad"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "MissingRejectionReason", decode(t, rec)["meta"].(map[string]any)["kind"])

	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/reject", map[string]any{"version": 3, "reason": "Figures are illegible"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "draft", body["sheet"].(map[string]any)["status"])
	assert.Equal(t, "Figures are illegible", body["event"].(map[string]any)["notes"])

	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/verify", map[string]any{"version": 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", decode(t, rec)["meta"].(map[string]any)["kind"])

	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/publish", map[string]any{"version": 4})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/sheets/"+id+"/Submit", map[string]any{"version": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "submitted", decode(t, rec)["sheet"].(map[string]any)["status"])

	rec = do(t, e, http.MethodGet, "/api/v1/elections/e-1/sheets?status=submitted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, e, http.MethodGet, "/api/v1/elections/e-1/sheets?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWritesRequireActor(t *testing.T) {
	e := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/elections/e-1/sheets", bytes.NewReader([]byte(`{"polling_station_id":"ps-1"}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
