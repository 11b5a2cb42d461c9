package repository

import (
	"context"
	"time"

	"survey-engine/internal/model"
)

// SortKeyWrite is a compare-and-set on a record's effective sort key. The
// write only lands when the effective key still equals Expected.
type SortKeyWrite struct {
	ID       string
	Overlay  bool
	Expected float64
	Key      float64
}

// Tx is the unit of work every engine operation runs in. Implementations must
// be safe for concurrent use by the goroutines of one cascade.
type Tx interface {
	GetRecord(ctx context.Context, id string) (model.Record, error)
	// ListSiblings returns every record sharing parentKey, hidden ones
	// included, and holds the collection against concurrent writers until
	// the transaction ends, even while it is empty.
	ListSiblings(ctx context.Context, parentKey string) ([]model.Record, error)
	InsertRecord(ctx context.Context, rec model.Record) error
	UpdateRecord(ctx context.Context, rec model.Record) error
	UpdateSortKey(ctx context.Context, w SortKeyWrite) error
	DeleteRecord(ctx context.Context, id string) error

	ListDependents(ctx context.Context, ownerID string) ([]model.Dependent, error)
	InsertDependent(ctx context.Context, d model.Dependent) error
	DeleteDependent(ctx context.Context, id string) error

	InsertTrash(ctx context.Context, e model.TrashEntry) error
	GetTrash(ctx context.Context, id string) (model.TrashEntry, error)
	FindTrashByTarget(ctx context.Context, targetID string) (model.TrashEntry, error)
	UpdateTrash(ctx context.Context, e model.TrashEntry) error
	DeleteTrash(ctx context.Context, id string) error
	ListTrash(ctx context.Context, filter model.TrashFilter) ([]model.TrashEntry, error)
	ListTrashByParent(ctx context.Context, parentEntryID string) ([]model.TrashEntry, error)
	ListExpiredTrash(ctx context.Context, now time.Time) ([]model.TrashEntry, error)
	ListClearingTrash(ctx context.Context) ([]model.TrashEntry, error)
}

// Store opens transactions. fn's error rolls everything back; a nil return
// commits.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ListChildren lists the children of parentID that have type child.
func ListChildren(ctx context.Context, tx Tx, parentID string, child model.EntityType) ([]model.Record, error) {
	return tx.ListSiblings(ctx, model.ParentKeyFor(parentID, child))
}
