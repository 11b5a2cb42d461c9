package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
	"survey-engine/internal/repository"
)

const tenant = "tenant-1"

type fixture struct {
	ctx     context.Context
	store   *repository.MemoryStore
	bus     *event.InMemoryBus
	overlay *OverlayService
	trash   *TrashService
}

func newFixture(t *testing.T, collab Collaborators, settings Settings) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	bus := event.NewBus()
	return &fixture{
		ctx:     context.Background(),
		store:   store,
		bus:     bus,
		overlay: NewOverlayService(store, bus, collab, settings),
		trash:   NewTrashService(store, bus, collab, settings),
	}
}

func (f *fixture) create(t *testing.T, typ model.EntityType, parentID string, fields model.Fields) string {
	t.Helper()
	view, err := f.overlay.Create(f.ctx, CreateInput{TenantID: tenant, Type: typ, ParentID: parentID, Fields: fields})
	require.NoError(t, err)
	return view.ID
}

func (f *fixture) record(t *testing.T, id string) model.Record {
	t.Helper()
	var rec model.Record
	require.NoError(t, f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, id)
		return err
	}))
	return rec
}

func (f *fixture) exists(t *testing.T, id string) bool {
	t.Helper()
	var found bool
	require.NoError(t, f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetRecord(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	}))
	return found
}

func (f *fixture) entry(t *testing.T, id string) (model.TrashEntry, bool) {
	t.Helper()
	var entry model.TrashEntry
	var found bool
	require.NoError(t, f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entry, err = tx.GetTrash(ctx, id)
		if errors.Is(err, model.ErrTrashNotFound) {
			return nil
		}
		found = err == nil
		return err
	}))
	return entry, found
}

func (f *fixture) dependents(t *testing.T, ownerID string) []model.Dependent {
	t.Helper()
	var deps []model.Dependent
	require.NoError(t, f.store.WithinTx(f.ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		deps, err = tx.ListDependents(ctx, ownerID)
		return err
	}))
	return deps
}

func (f *fixture) childIDs(t *testing.T, parentID string, typ model.EntityType, includeHidden bool) []string {
	t.Helper()
	views, err := f.overlay.Children(f.ctx, parentID, typ, includeHidden)
	require.NoError(t, err)
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}

// tree is one chain workspace > survey > section > item > question.
type tree struct {
	workspace string
	survey    string
	section   string
	item      string
	question  string
}

func (f *fixture) tree(t *testing.T) tree {
	t.Helper()
	var tr tree
	tr.workspace = f.create(t, model.EntityWorkspace, "", model.Fields{"title": "Acme"})
	tr.survey = f.create(t, model.EntitySurvey, tr.workspace, model.Fields{"title": "Onboarding"})
	tr.section = f.create(t, model.EntitySection, tr.survey, model.Fields{"title": "Intro"})
	tr.item = f.create(t, model.EntityItem, tr.section, model.Fields{"title": "Item"})
	tr.question = f.create(t, model.EntityQuestion, tr.item, model.Fields{"text": "How are you?"})
	return tr
}

type mockAssets struct {
	mock.Mock
}

func (m *mockAssets) UploadBinary(_ context.Context, tenantID string, data []byte) (string, error) {
	args := m.Called(tenantID, data)
	return args.String(0), args.Error(1)
}

func (m *mockAssets) DeleteBinary(_ context.Context, ref string) error {
	return m.Called(ref).Error(0)
}

type mockLimits struct {
	mock.Mock
}

func (m *mockLimits) CheckLimit(_ context.Context, rec model.Record) (LimitHandle, error) {
	args := m.Called(rec.Type)
	return args.Get(0).(LimitHandle), args.Error(1)
}

func (m *mockLimits) ReleaseLimit(_ context.Context, handle LimitHandle) error {
	return m.Called(handle).Error(0)
}

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) TranslateFields(_ context.Context, fields model.Fields, from string, to string) (model.Fields, error) {
	args := m.Called(fields, from, to)
	out, _ := args.Get(0).(model.Fields)
	return out, args.Error(1)
}
