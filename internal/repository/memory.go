package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"survey-engine/internal/model"
)

// MemoryStore keeps everything in process. Transactions run one at a time on a
// private copy of the state that replaces the committed state only when fn
// returns nil, which gives the same all-or-nothing outcome as the database.
type MemoryStore struct {
	txMu  sync.Mutex
	state memoryState

	// FailWrite, when set, is consulted before every write; a non-nil result
	// aborts that write. Ops are "insert_record", "update_record",
	// "update_sort_key", "delete_record", "insert_dependent",
	// "delete_dependent", "insert_trash", "update_trash", "delete_trash".
	FailWrite func(op string, id string) error
}

type memoryState struct {
	records    map[string]model.Record
	dependents map[string]model.Dependent
	trash      map[string]model.TrashEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		records:    map[string]model.Record{},
		dependents: map[string]model.Dependent{},
		trash:      map[string]model.TrashEntry{},
	}}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		records:    make(map[string]model.Record, len(s.records)),
		dependents: make(map[string]model.Dependent, len(s.dependents)),
		trash:      make(map[string]model.TrashEntry, len(s.trash)),
	}
	for k, v := range s.records {
		out.records[k] = v.Clone()
	}
	for k, v := range s.dependents {
		out.dependents[k] = v
	}
	for k, v := range s.trash {
		v.OwnerChain = slices.Clone(v.OwnerChain)
		out.trash[k] = v
	}
	return out
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{state: s.state.clone(), failWrite: s.FailWrite}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// Records returns a copy of every committed record. Test helper.
func (s *MemoryStore) Records() []model.Record {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	out := make([]model.Record, 0, len(s.state.records))
	for _, r := range s.state.records {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b model.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

type memTx struct {
	mu        sync.Mutex
	state     memoryState
	failWrite func(op string, id string) error
}

func (t *memTx) check(op string, id string) error {
	if t.failWrite == nil {
		return nil
	}
	return t.failWrite(op, id)
}

func (t *memTx) GetRecord(_ context.Context, id string) (model.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.state.records[id]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (t *memTx) ListSiblings(_ context.Context, parentKey string) ([]model.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Record, 0)
	for _, r := range t.state.records {
		if r.ParentKey == parentKey {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Record) int {
		if c := cmp.Compare(a.EffectiveSortKey(), b.EffectiveSortKey()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *memTx) InsertRecord(_ context.Context, rec model.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("insert_record", rec.ID); err != nil {
		return err
	}
	if _, exists := t.state.records[rec.ID]; exists {
		return fmt.Errorf("insert record: duplicate id %s", rec.ID)
	}
	t.state.records[rec.ID] = rec.Clone()
	return nil
}

func (t *memTx) UpdateRecord(_ context.Context, rec model.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("update_record", rec.ID); err != nil {
		return err
	}
	if _, ok := t.state.records[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, rec.ID)
	}
	rec.UpdatedAt = time.Now().UTC()
	t.state.records[rec.ID] = rec.Clone()
	return nil
}

func (t *memTx) UpdateSortKey(_ context.Context, w SortKeyWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("update_sort_key", w.ID); err != nil {
		return err
	}
	rec, ok := t.state.records[w.ID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, w.ID)
	}
	if rec.EffectiveSortKey() != w.Expected {
		return fmt.Errorf("%w: sort key of %s changed", model.ErrConcurrentModification, w.ID)
	}
	if w.Overlay {
		key := w.Key
		rec.OverlaySortKey = &key
	} else {
		rec.SortKey = w.Key
	}
	rec.UpdatedAt = time.Now().UTC()
	t.state.records[w.ID] = rec
	return nil
}

func (t *memTx) DeleteRecord(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("delete_record", id); err != nil {
		return err
	}
	if _, ok := t.state.records[id]; !ok {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	delete(t.state.records, id)
	return nil
}

func (t *memTx) ListDependents(_ context.Context, ownerID string) ([]model.Dependent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Dependent, 0)
	for _, d := range t.state.dependents {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b model.Dependent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *memTx) InsertDependent(_ context.Context, d model.Dependent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("insert_dependent", d.ID); err != nil {
		return err
	}
	t.state.dependents[d.ID] = d
	return nil
}

func (t *memTx) DeleteDependent(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("delete_dependent", id); err != nil {
		return err
	}
	delete(t.state.dependents, id)
	return nil
}

func (t *memTx) InsertTrash(_ context.Context, e model.TrashEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("insert_trash", e.ID); err != nil {
		return err
	}
	for _, existing := range t.state.trash {
		if existing.TargetID == e.TargetID {
			return fmt.Errorf("create trash entry: target %s already tracked", e.TargetID)
		}
	}
	t.state.trash[e.ID] = e
	return nil
}

func (t *memTx) GetTrash(_ context.Context, id string) (model.TrashEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.state.trash[id]
	if !ok {
		return model.TrashEntry{}, model.ErrTrashNotFound
	}
	return e, nil
}

func (t *memTx) FindTrashByTarget(_ context.Context, targetID string) (model.TrashEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.state.trash {
		if e.TargetID == targetID {
			return e, nil
		}
	}
	return model.TrashEntry{}, model.ErrTrashNotFound
}

func (t *memTx) UpdateTrash(_ context.Context, e model.TrashEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("update_trash", e.ID); err != nil {
		return err
	}
	current, ok := t.state.trash[e.ID]
	if !ok {
		return model.ErrTrashNotFound
	}
	current.Stage = e.Stage
	current.DraftScope = e.DraftScope
	current.ExpireAt = e.ExpireAt
	current.Attempts = e.Attempts
	current.LastError = e.LastError
	t.state.trash[e.ID] = current
	return nil
}

func (t *memTx) DeleteTrash(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.check("delete_trash", id); err != nil {
		return err
	}
	if _, ok := t.state.trash[id]; !ok {
		return model.ErrTrashNotFound
	}
	delete(t.state.trash, id)
	for k, e := range t.state.trash {
		if e.ParentEntryID == id {
			e.ParentEntryID = ""
			t.state.trash[k] = e
		}
	}
	return nil
}

func (t *memTx) listTrash(match func(model.TrashEntry) bool) []model.TrashEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.TrashEntry, 0)
	for _, e := range t.state.trash {
		if match(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b model.TrashEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (t *memTx) ListTrash(_ context.Context, filter model.TrashFilter) ([]model.TrashEntry, error) {
	return t.listTrash(func(e model.TrashEntry) bool {
		return (filter.TenantID == "" || e.TenantID == filter.TenantID) &&
			(filter.Stage == "" || e.Stage == filter.Stage) &&
			(filter.DraftScope == "" || e.DraftScope == filter.DraftScope)
	}), nil
}

func (t *memTx) ListTrashByParent(_ context.Context, parentEntryID string) ([]model.TrashEntry, error) {
	return t.listTrash(func(e model.TrashEntry) bool { return e.ParentEntryID == parentEntryID }), nil
}

func (t *memTx) ListExpiredTrash(_ context.Context, now time.Time) ([]model.TrashEntry, error) {
	return t.listTrash(func(e model.TrashEntry) bool {
		return e.Stage == model.StageInitial && !e.ExpireAt.After(now)
	}), nil
}

func (t *memTx) ListClearingTrash(_ context.Context) ([]model.TrashEntry, error) {
	return t.listTrash(func(e model.TrashEntry) bool { return e.Stage == model.StageClearing }), nil
}
