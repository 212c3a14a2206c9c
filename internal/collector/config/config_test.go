package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	require.NotPanics(t, func() { DefaultConfig() })
	cfg := DefaultConfig()

	assert.Equal(t, "https://localhost:8089", cfg.KVStore.Host)
	assert.Equal(t, "nobody", cfg.KVStore.Owner)
	assert.True(t, cfg.KVStore.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, cfg.KVStore.ConfigTimeout)
	assert.Equal(t, 10*time.Second, cfg.KVStore.DataTimeout)
	assert.Equal(t, 120*time.Second, cfg.KVStore.BulkTimeout)
	assert.Equal(t, 3, cfg.KVStore.EnsureAttempts)
	assert.Equal(t, TrackerMemory, cfg.Tracker.Backend)
	assert.Equal(t, SinkNone, cfg.Sink.Backend)
	assert.False(t, cfg.Lock.Enabled)
	assert.Equal(t, 2000, cfg.RowLimit)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.False(t, cfg.NeedsRedis())
}

func TestValidateServe_RejectsMemoryTracker(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateServe()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))

	for _, backend := range []string{TrackerRedis, TrackerMongoDB, TrackerSQLite} {
		cfg.Tracker.Backend = backend
		assert.NoError(t, cfg.ValidateServe(), backend)
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("KVSTORE_HOST", "https://splunk.internal:8089")
	t.Setenv("KVSTORE_TOKEN", "session")
	t.Setenv("KVSTORE_INSECURE_SKIP_VERIFY", "false")
	t.Setenv("TRACKER_BACKEND", "redis")
	t.Setenv("REPORT_ROW_LIMIT", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://splunk.internal:8089", cfg.KVStore.Host)
	assert.False(t, cfg.KVStore.InsecureSkipVerify)
	assert.True(t, cfg.NeedsRedis())
	assert.Zero(t, cfg.RowLimit)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KVStore.Host = "localhost:8089"
	cfg.Tracker.Backend = "postgres"
	cfg.Sink.Backend = SinkFile
	cfg.RowLimit = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	for _, field := range []string{"KVSTORE_HOST", "KVSTORE_TOKEN", "TRACKER_BACKEND", "SINK_PATH", "REPORT_ROW_LIMIT"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidate_JWTScheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KVStore.AuthScheme = "JWT"
	assert.ErrorContains(t, cfg.Validate(), "KVSTORE_JWT_SECRET")

	cfg.KVStore.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MongoTrackerNeedsURI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KVStore.Token = "t"
	cfg.Tracker.Backend = TrackerMongoDB
	assert.ErrorContains(t, cfg.Validate(), "MONGODB_URI")

	cfg.Tracker.MongoDBURI = "mongodb://localhost:27017"
	assert.NoError(t, cfg.Validate())
}

const inputsYAML = `
inputs:
  - name: pipeline
    report_id: 00O1
    source:
      describe: testdata/describe.json
      export: testdata/export.csv
    keyed: true
    key_fields: '"Region", "SKU"'
    purge: report
    enable_schema: true
    enable_lookup: true
    record_filter: record.Stage != "Closed Lost"
  - name: forecast
    report_id: 00O2
    collection: forecasts
    source:
      type: analytics
      report: testdata/report.json
    key_fields: [Id]
    purge: true
    enable_store: false
    enable_indexing: true
`

func TestParseInputs(t *testing.T) {
	inputs, err := ParseInputs([]byte(inputsYAML))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	pipeline := inputs[0]
	assert.Equal(t, model.ReportIdentity{InputName: "pipeline", ReportID: "00O1"}, pipeline.Identity())
	assert.Equal(t, SourceExport, pipeline.Source.Type)
	assert.Equal(t, DefaultFooterRows, pipeline.Source.FooterRows)
	assert.True(t, pipeline.EnableStore)
	assert.Equal(t, model.Policy{Keyed: true, KeyFields: []string{"Region", "SKU"}, Purge: model.PurgeReport}, pipeline.Policy())
	assert.Equal(t, `record.Stage != "Closed Lost"`, pipeline.RecordFilter)

	forecast := inputs[1]
	assert.Equal(t, SourceAnalytics, forecast.Source.Type)
	assert.Equal(t, []string{"Id"}, []string(forecast.KeyFields))
	assert.Equal(t, model.PurgeAll, forecast.Policy().Purge)
	assert.False(t, forecast.EnableStore)
	assert.True(t, forecast.EnableIndexing)

	found, ok := Find(inputs, "forecast")
	assert.True(t, ok)
	assert.Equal(t, "forecasts", found.Collection)
	_, ok = Find(inputs, "missing")
	assert.False(t, ok)
}

func TestParseInputs_PurgeDefaultsToNone(t *testing.T) {
	inputs, err := ParseInputs([]byte(`
inputs:
  - name: a
    report_id: "1"
    source: {type: analytics, report: r.json}
`))
	require.NoError(t, err)
	assert.Equal(t, model.PurgeNone, inputs[0].Policy().Purge)
	assert.False(t, inputs[0].Keyed)
}

func TestParseInputs_ValidationErrors(t *testing.T) {
	_, err := ParseInputs([]byte(`
inputs:
  - name: a
    source: {type: export}
    keyed: true
  - name: a
    report_id: "2"
    source: {type: ftp}
`))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	msg := err.Error()
	assert.Contains(t, msg, "inputs[a].report_id")
	assert.Contains(t, msg, "inputs[a].source.describe")
	assert.Contains(t, msg, "inputs[a].key_fields")
	assert.Contains(t, msg, "inputs[a].source.type")
	assert.Contains(t, msg, "defined more than once")
}

func TestParseInputs_BadPurge(t *testing.T) {
	_, err := ParseInputs([]byte(`
inputs:
  - name: a
    report_id: "1"
    purge: sometimes
    source: {type: analytics, report: r.json}
`))
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestLoadInputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inputsYAML), 0o600))

	inputs, err := LoadInputs(path)
	require.NoError(t, err)
	assert.Len(t, inputs, 2)

	_, err = LoadInputs(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, apperrors.IsConfiguration(err))
}
