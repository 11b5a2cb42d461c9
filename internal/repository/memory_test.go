package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
)

func seedRecord(id string, parentKey string, key float64) model.Record {
	return model.Record{
		ID:        id,
		Type:      model.EntityItem,
		TenantID:  "t1",
		ParentKey: parentKey,
		SortKey:   key,
		Published: model.Fields{"title": id},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertRecord(ctx, seedRecord("a", "p/item", 0))
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.GetRecord(ctx, "a")
		require.NoError(t, err)
		rec.Published["title"] = "changed"
		require.NoError(t, tx.UpdateRecord(ctx, rec))
		require.NoError(t, tx.InsertRecord(ctx, seedRecord("b", "p/item", 1)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].Published["title"])
}

func TestMemoryStore_SiblingsSortedByEffectiveKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	overlayKey := -3.0
	shadowed := seedRecord("c", "p/item", 5)
	shadowed.OverlaySortKey = &overlayKey

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.InsertRecord(ctx, seedRecord("a", "p/item", 0)))
		require.NoError(t, tx.InsertRecord(ctx, seedRecord("b", "p/item", 1)))
		require.NoError(t, tx.InsertRecord(ctx, shadowed))
		require.NoError(t, tx.InsertRecord(ctx, seedRecord("other", "q/item", -10)))

		siblings, err := tx.ListSiblings(ctx, "p/item")
		require.NoError(t, err)
		ids := make([]string, len(siblings))
		for i, s := range siblings {
			ids[i] = s.ID
		}
		require.Equal(t, []string{"c", "a", "b"}, ids)
		return nil
	}))
}

func TestMemoryStore_SortKeyCompareAndSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.InsertRecord(ctx, seedRecord("a", "p/item", 2)))

		err := tx.UpdateSortKey(ctx, SortKeyWrite{ID: "a", Expected: 1, Key: 7})
		require.ErrorIs(t, err, model.ErrConcurrentModification)

		require.NoError(t, tx.UpdateSortKey(ctx, SortKeyWrite{ID: "a", Overlay: true, Expected: 2, Key: 7}))
		rec, err := tx.GetRecord(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, 2.0, rec.SortKey)
		require.Equal(t, 7.0, rec.EffectiveSortKey())
		return nil
	}))
}

func TestMemoryStore_TrashQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.InsertTrash(ctx, model.TrashEntry{ID: "e1", TenantID: "t1", TargetID: "r1", Stage: model.StageInitial, ExpireAt: now.Add(-time.Hour)}))
		require.NoError(t, tx.InsertTrash(ctx, model.TrashEntry{ID: "e2", TenantID: "t1", TargetID: "r2", Stage: model.StageInitial, ExpireAt: now.Add(time.Hour)}))
		require.NoError(t, tx.InsertTrash(ctx, model.TrashEntry{ID: "e3", TenantID: "t2", TargetID: "r3", Stage: model.StageClearing, ParentEntryID: "e1"}))

		require.Error(t, tx.InsertTrash(ctx, model.TrashEntry{ID: "dup", TargetID: "r1"}))

		expired, err := tx.ListExpiredTrash(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		require.Equal(t, "e1", expired[0].ID)

		byTenant, err := tx.ListTrash(ctx, model.TrashFilter{TenantID: "t1"})
		require.NoError(t, err)
		require.Len(t, byTenant, 2)

		require.NoError(t, tx.DeleteTrash(ctx, "e1"))
		orphan, err := tx.GetTrash(ctx, "e3")
		require.NoError(t, err)
		require.Empty(t, orphan.ParentEntryID)

		_, err = tx.FindTrashByTarget(ctx, "r1")
		require.ErrorIs(t, err, model.ErrTrashNotFound)
		return nil
	}))
}

func TestMemoryStore_FailWriteHook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()
	injected := errors.New("disk full")
	store.FailWrite = func(op string, id string) error {
		if op == "insert_record" && id == "bad" {
			return injected
		}
		return nil
	}

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertRecord(ctx, seedRecord("good", "p/item", 0)); err != nil {
			return err
		}
		return tx.InsertRecord(ctx, seedRecord("bad", "p/item", 1))
	})
	require.ErrorIs(t, err, injected)
	require.Empty(t, store.Records())
}
