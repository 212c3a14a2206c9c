package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadsMetadata() *model.ReportMetadata {
	return &model.ReportMetadata{
		ReportID: "00O1",
		Columns: []model.Column{
			{ID: "ACCOUNT_ID", Label: "Id", SourceDataType: "id"},
			{ID: "AMOUNT", Label: "Amount", SourceDataType: "currency"},
			{ID: "CLOSED", Label: "Closed", SourceDataType: "boolean"},
			{ID: "CLOSE_DATE", Label: "Close Date", SourceDataType: "date"},
			{ID: "TAGS", Label: "Tags", SourceDataType: "array"},
		},
	}
}

func TestEnsureCollection_AlreadyListed(t *testing.T) {
	store := &mockStore{
		ListCollectionsFn: func(context.Context, string) ([]string, error) { return []string{"other", "leads"}, nil },
	}
	sync := NewSchemaSynchronizer(store, nil)

	require.NoError(t, sync.EnsureCollection(context.Background(), "leads", "search"))
	assert.Equal(t, []string{"list"}, store.ops())
}

func TestEnsureCollection_CreatesWhenAbsent(t *testing.T) {
	store := &mockStore{}
	sync := NewSchemaSynchronizer(store, nil)

	require.NoError(t, sync.EnsureCollection(context.Background(), "leads", "search"))
	assert.Equal(t, []string{"list", "create"}, store.ops())
}

func TestEnsureCollection_RaceResolvedByRelisting(t *testing.T) {
	listed := false
	store := &mockStore{
		ListCollectionsFn: func(context.Context, string) ([]string, error) {
			if listed {
				return []string{"leads"}, nil
			}
			return nil, nil
		},
		CreateCollectionFn: func(context.Context, string, string) error {
			listed = true
			return apperrors.NewAlreadyExistsError(http.MethodPost, "config")
		},
	}
	sync := NewSchemaSynchronizer(store, nil)

	require.NoError(t, sync.EnsureCollection(context.Background(), "leads", "search"))
	assert.Equal(t, []string{"list", "create", "list"}, store.ops())
}

func TestEnsureCollection_AlreadyExistsIsBounded(t *testing.T) {
	store := &mockStore{
		CreateCollectionFn: func(context.Context, string, string) error {
			return apperrors.NewAlreadyExistsError(http.MethodPost, "config")
		},
	}
	sync := NewSchemaSynchronizer(store, nil)

	err := sync.EnsureCollection(context.Background(), "leads", "search")
	assert.True(t, apperrors.IsAlreadyExists(err))
	assert.Len(t, store.callsOf("create"), DefaultEnsureAttempts)
}

func TestEnsureCollection_OtherErrorsNotRetried(t *testing.T) {
	store := &mockStore{
		CreateCollectionFn: func(context.Context, string, string) error {
			return apperrors.NewRequestFailedError(http.MethodPost, "config", "Forbidden", http.StatusForbidden)
		},
	}
	sync := NewSchemaSynchronizer(store, nil)

	err := sync.EnsureCollection(context.Background(), "leads", "search")
	assert.True(t, apperrors.IsRequestFailed(err))
	assert.Len(t, store.callsOf("create"), 1)

	listErr := errors.New("boom")
	store = &mockStore{ListCollectionsFn: func(context.Context, string) ([]string, error) { return nil, listErr }}
	err = NewSchemaSynchronizer(store, nil).EnsureCollection(context.Background(), "leads", "search")
	assert.ErrorIs(t, err, listErr)
	assert.Empty(t, store.callsOf("create"))
}

func TestSync_FieldsInColumnOrderWithMappedTypes(t *testing.T) {
	var lookupFields []string
	store := &mockStore{
		ConfigureLookupFn: func(_ context.Context, _, _ string, fields []string) error {
			lookupFields = fields
			return nil
		},
	}
	sync := NewSchemaSynchronizer(store, nil)

	labels, err := sync.Sync(context.Background(), "leads", "search", leadsMetadata(), true)
	require.NoError(t, err)

	want := []string{"Id", "Amount", "Closed", "Close Date", "Tags"}
	assert.Equal(t, want, labels)
	assert.Equal(t, want, lookupFields)

	var fields []string
	for _, c := range store.callsOf("field") {
		fields = append(fields, c.Key)
	}
	assert.Equal(t, []string{
		"field.Id=string",
		"field.Amount=number",
		"field.Closed=bool",
		"field.Close Date=string",
		"field.Tags=array",
	}, fields)
	assert.Equal(t, "lookup", store.ops()[len(store.ops())-1])
}

func TestSync_LookupDisabled(t *testing.T) {
	store := &mockStore{}
	_, err := NewSchemaSynchronizer(store, nil).Sync(context.Background(), "leads", "search", leadsMetadata(), false)
	require.NoError(t, err)
	assert.Empty(t, store.callsOf("lookup"))
	assert.Len(t, store.callsOf("field"), 5)
}

func TestSync_LookupWithNoColumnsIsConfigurationError(t *testing.T) {
	store := &mockStore{}
	_, err := NewSchemaSynchronizer(store, nil).Sync(context.Background(), "leads", "search", &model.ReportMetadata{}, true)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Empty(t, store.ops())
}

func TestSync_FieldErrorStops(t *testing.T) {
	store := &mockStore{
		ConfigureFieldFn: func(_ context.Context, _, _ string, f model.FieldDefinition) error {
			if f.Name == "Closed" {
				return apperrors.NewRequestFailedError(http.MethodPost, "config/leads", "Bad Request", http.StatusBadRequest)
			}
			return nil
		},
	}
	labels, err := NewSchemaSynchronizer(store, nil).Sync(context.Background(), "leads", "search", leadsMetadata(), true)
	assert.True(t, apperrors.IsRequestFailed(err))
	assert.Equal(t, []string{"Id", "Amount"}, labels)
	assert.Empty(t, store.callsOf("lookup"))
}
