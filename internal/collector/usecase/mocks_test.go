package usecase

import (
	"context"
	"sync"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
)

// storeCall is one recorded call on mockStore.
type storeCall struct {
	Op         string
	Collection string
	Key        string
	Record     *model.Record
	Query      model.Query
}

type mockStore struct {
	mu    sync.Mutex
	calls []storeCall

	CreateCollectionFn func(ctx context.Context, collection, app string) error
	ConfigureFieldFn   func(ctx context.Context, collection, app string, field model.FieldDefinition) error
	ConfigureLookupFn  func(ctx context.Context, name, app string, fields []string) error
	InsertRecordFn     func(ctx context.Context, collection, app, owner string, record *model.Record) (string, error)
	UpdateRecordFn     func(ctx context.Context, collection, app, owner, key string, record *model.Record) (string, error)
	GetRecordFn        func(ctx context.Context, collection, app, key string) (*model.Record, error)
	DeleteRecordFn     func(ctx context.Context, collection, app, key string) error
	DeleteAllFn        func(ctx context.Context, collection, app string) error
	DeleteByQueryFn    func(ctx context.Context, collection, app string, query model.Query) error
	ListCollectionsFn  func(ctx context.Context, app string) ([]string, error)
}

var _ repository.KVStore = (*mockStore)(nil)

func (m *mockStore) add(c storeCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *mockStore) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Op)
	}
	return out
}

func (m *mockStore) callsOf(op string) []storeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storeCall
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockStore) CreateCollection(ctx context.Context, collection, app string) error {
	m.add(storeCall{Op: "create", Collection: collection})
	if m.CreateCollectionFn != nil {
		return m.CreateCollectionFn(ctx, collection, app)
	}
	return nil
}

func (m *mockStore) ConfigureField(ctx context.Context, collection, app string, field model.FieldDefinition) error {
	m.add(storeCall{Op: "field", Collection: collection, Key: field.ConfigKey() + "=" + string(field.Type)})
	if m.ConfigureFieldFn != nil {
		return m.ConfigureFieldFn(ctx, collection, app, field)
	}
	return nil
}

func (m *mockStore) ConfigureLookup(ctx context.Context, name, app string, fields []string) error {
	m.add(storeCall{Op: "lookup", Collection: name})
	if m.ConfigureLookupFn != nil {
		return m.ConfigureLookupFn(ctx, name, app, fields)
	}
	return nil
}

func (m *mockStore) InsertRecord(ctx context.Context, collection, app, owner string, record *model.Record) (string, error) {
	key := ""
	if v, ok := record.Get(model.FieldKey); ok {
		key = model.ScalarString(v)
	}
	m.add(storeCall{Op: "insert", Collection: collection, Key: key, Record: record.Clone()})
	if m.InsertRecordFn != nil {
		return m.InsertRecordFn(ctx, collection, app, owner, record)
	}
	if key == "" {
		key = "generated"
	}
	return key, nil
}

func (m *mockStore) UpdateRecord(ctx context.Context, collection, app, owner, key string, record *model.Record) (string, error) {
	m.add(storeCall{Op: "update", Collection: collection, Key: key, Record: record.Clone()})
	if m.UpdateRecordFn != nil {
		return m.UpdateRecordFn(ctx, collection, app, owner, key, record)
	}
	return key, nil
}

func (m *mockStore) GetRecord(ctx context.Context, collection, app, key string) (*model.Record, error) {
	m.add(storeCall{Op: "get", Collection: collection, Key: key})
	if m.GetRecordFn != nil {
		return m.GetRecordFn(ctx, collection, app, key)
	}
	return model.NewRecord(), nil
}

func (m *mockStore) DeleteRecord(ctx context.Context, collection, app, key string) error {
	m.add(storeCall{Op: "delete", Collection: collection, Key: key})
	if m.DeleteRecordFn != nil {
		return m.DeleteRecordFn(ctx, collection, app, key)
	}
	return nil
}

func (m *mockStore) DeleteAll(ctx context.Context, collection, app string) error {
	m.add(storeCall{Op: "delete_all", Collection: collection})
	if m.DeleteAllFn != nil {
		return m.DeleteAllFn(ctx, collection, app)
	}
	return nil
}

func (m *mockStore) DeleteByQuery(ctx context.Context, collection, app string, query model.Query) error {
	m.add(storeCall{Op: "delete_query", Collection: collection, Query: query})
	if m.DeleteByQueryFn != nil {
		return m.DeleteByQueryFn(ctx, collection, app, query)
	}
	return nil
}

func (m *mockStore) ListCollections(ctx context.Context, app string) ([]string, error) {
	m.add(storeCall{Op: "list"})
	if m.ListCollectionsFn != nil {
		return m.ListCollectionsFn(ctx, app)
	}
	return nil, nil
}

type mockTracker struct {
	snapshots []model.StatusSnapshot
	ids       []model.ReportIdentity
	err       error
}

func (m *mockTracker) RecordStatus(ctx context.Context, id model.ReportIdentity, snapshot model.StatusSnapshot) error {
	m.ids = append(m.ids, id)
	m.snapshots = append(m.snapshots, snapshot)
	return m.err
}

type mockSource struct {
	DescribeFn func(ctx context.Context) (*model.ReportMetadata, error)
	RecordsFn  func(ctx context.Context) ([]*model.Record, error)
}

func (m *mockSource) Describe(ctx context.Context) (*model.ReportMetadata, error) {
	if m.DescribeFn != nil {
		return m.DescribeFn(ctx)
	}
	return &model.ReportMetadata{}, nil
}

func (m *mockSource) Records(ctx context.Context) ([]*model.Record, error) {
	if m.RecordsFn != nil {
		return m.RecordsFn(ctx)
	}
	return nil, nil
}

// staticSource returns fixed metadata and fresh copies of records.
func staticSource(meta *model.ReportMetadata, records ...*model.Record) *mockSource {
	return &mockSource{
		DescribeFn: func(context.Context) (*model.ReportMetadata, error) { return meta, nil },
		RecordsFn: func(context.Context) ([]*model.Record, error) {
			out := make([]*model.Record, len(records))
			for i, r := range records {
				out[i] = r.Clone()
			}
			return out, nil
		},
	}
}

type mockSink struct {
	indexed []*model.Record
	sources []string
	err     error
}

func (m *mockSink) Index(ctx context.Context, source string, record *model.Record) error {
	if m.err != nil {
		return m.err
	}
	m.sources = append(m.sources, source)
	m.indexed = append(m.indexed, record.Clone())
	return nil
}

type mockLocker struct {
	err      error
	acquired []string
	released int
}

func (m *mockLocker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired = append(m.acquired, key)
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}
