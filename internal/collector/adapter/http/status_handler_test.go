package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	snapshots map[string]model.StatusSnapshot
	err       error
}

func (s stubReader) GetStatus(ctx context.Context, key string) (*model.StatusSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &snap, nil
}

var (
	pipeline = model.ReportIdentity{InputName: "pipeline", ReportID: "00O1"}
	forecast = model.ReportIdentity{InputName: "forecast", ReportID: "00O2"}
)

func newTestApp(reader stubReader) *fiber.App {
	app := fiber.New()
	NewStatusHandler(reader, []model.ReportIdentity{pipeline, forecast}, nil).RegisterRoutes(app)
	return app
}

func doGet(t *testing.T, app *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestStatusHandler_Health(t *testing.T) {
	code, body := doGet(t, newTestApp(stubReader{}), "/health")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusHandler_GetStatus(t *testing.T) {
	snap := model.NewStatusSnapshot("run-1", pipeline, model.StatusSuccess, "pipeline",
		"2026-10-16T08:00:00Z", model.Counters{Stored: 2, Updated: 1}, "report collection completed")
	app := newTestApp(stubReader{snapshots: map[string]model.StatusSnapshot{"pipeline-00O1": snap}})

	code, body := doGet(t, app, "/v1/status/pipeline-00O1")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "2", body["records_kvstore"])
	assert.Equal(t, "1", body["records_updated"])
	assert.Equal(t, "2026-10-16T08:00:00Z", body["_updated"])

	code, body = doGet(t, app, "/v1/status/forecast-00O2")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])
}

func TestStatusHandler_ReaderError(t *testing.T) {
	app := newTestApp(stubReader{err: errors.New("connection refused")})

	code, body := doGet(t, app, "/v1/status/pipeline-00O1")
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "connection refused", body["message"])

	code, _ = doGet(t, app, "/v1/status")
	assert.Equal(t, fiber.StatusInternalServerError, code)
}

func TestStatusHandler_ListStatus(t *testing.T) {
	snap := model.NewStatusSnapshot("run-1", pipeline, model.StatusFailure, "", "2026-10-16T08:00:00Z",
		model.Counters{}, "report source connection error: see logs for more detail")
	app := newTestApp(stubReader{snapshots: map[string]model.StatusSnapshot{"pipeline-00O1": snap}})

	code, body := doGet(t, app, "/v1/status")
	require.Equal(t, fiber.StatusOK, code)
	reports := body["reports"].([]interface{})
	require.Len(t, reports, 2)

	first := reports[0].(map[string]interface{})
	assert.Equal(t, "pipeline-00O1", first["checkpoint"])
	assert.Equal(t, "failure", first["last_run"].(map[string]interface{})["status"])

	second := reports[1].(map[string]interface{})
	assert.Equal(t, "forecast", second["report_name"])
	assert.Nil(t, second["last_run"])
}
