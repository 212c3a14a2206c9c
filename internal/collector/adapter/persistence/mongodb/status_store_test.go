package mongodb

import (
	"context"
	"errors"
	"testing"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	args := m.Called(ctx, filter, replacement, opts)
	if res := args.Get(0); res != nil {
		return res.(UpdateResultInterface), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCollection) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	return m.Called(ctx, filter).Get(0).(SingleResultInterface)
}

type fakeUpdateResult struct{ upserted bool }

func (r fakeUpdateResult) Matched() int64 {
	if r.upserted {
		return 0
	}
	return 1
}

func (r fakeUpdateResult) Upserted() bool { return r.upserted }

type fakeSingleResult struct {
	doc statusDocument
	err error
}

func (r fakeSingleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(v.(*statusDocument)) = r.doc
	return nil
}

var testIdentity = model.ReportIdentity{InputName: "pipeline", ReportID: "00O1"}

func TestStatusStore_RecordStatusUpserts(t *testing.T) {
	col := new(mockCollection)
	store := NewStatusStore(col, nil)
	snap := model.NewStatusSnapshot("run-1", testIdentity, model.StatusSuccess, "pipeline",
		"2026-10-16T08:00:00Z", model.Counters{Stored: 2}, "report collection completed")

	col.On("ReplaceOne", mock.Anything, bson.M{"_id": "pipeline-00O1"},
		statusDocument{ID: "pipeline-00O1", StatusSnapshot: snap},
		mock.MatchedBy(func(opts []*options.ReplaceOptions) bool {
			return len(opts) == 1 && opts[0].Upsert != nil && *opts[0].Upsert
		}),
	).Return(fakeUpdateResult{upserted: true}, nil)

	require.NoError(t, store.RecordStatus(context.Background(), testIdentity, snap))
	col.AssertExpectations(t)
}

func TestStatusStore_RecordStatusError(t *testing.T) {
	col := new(mockCollection)
	col.On("ReplaceOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("not primary"))

	err := NewStatusStore(col, nil).RecordStatus(context.Background(), testIdentity, model.StatusSnapshot{})
	assert.ErrorContains(t, err, "not primary")
}

func TestStatusStore_GetStatus(t *testing.T) {
	col := new(mockCollection)
	stored := statusDocument{ID: "pipeline-00O1", StatusSnapshot: model.StatusSnapshot{
		ReportName: "pipeline", ReportID: "00O1", Status: model.StatusFailure, Message: "boom",
	}}
	col.On("FindOne", mock.Anything, bson.M{"_id": "pipeline-00O1"}).Return(fakeSingleResult{doc: stored})
	col.On("FindOne", mock.Anything, bson.M{"_id": "absent-1"}).Return(fakeSingleResult{err: mongo.ErrNoDocuments})

	store := NewStatusStore(col, nil)
	snap, err := store.GetStatus(context.Background(), "pipeline-00O1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailure, snap.Status)
	assert.Equal(t, "boom", snap.Message)

	_, err = store.GetStatus(context.Background(), "absent-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStatusDocument_InlinesSnapshot(t *testing.T) {
	data, err := bson.Marshal(statusDocument{ID: "k", StatusSnapshot: model.StatusSnapshot{ReportName: "pipeline", RecordsStored: "3"}})
	require.NoError(t, err)

	var raw bson.M
	require.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, "k", raw["_id"])
	assert.Equal(t, "pipeline", raw["report_name"])
	assert.Equal(t, "3", raw["records_kvstore"])
}
