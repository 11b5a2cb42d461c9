package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"survey-engine/internal/model"
)

const recordColumns = `id, tenant_id, entity_type, parent_id, parent_key, scope_id,
	sort_key, overlay_sort_key, published, overlay,
	in_draft, draft_remove, in_trash, draft_open,
	translation_locked, translation_changed, created_at, updated_at`

// lockSiblingsSQL serializes writers of one sibling collection until commit.
const lockSiblingsSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// updateRecordSQL rewrites every mutable column. tenant_id, entity_type and
// created_at never change after insert.
const updateRecordSQL = `UPDATE records
	SET parent_id = $2, parent_key = $3, sort_key = $4, overlay_sort_key = $5,
	    published = $6, overlay = $7, in_draft = $8, draft_remove = $9, in_trash = $10,
	    draft_open = $11, translation_locked = $12, translation_changed = $13, updated_at = $14,
	    scope_id = $15
	WHERE id = $1`

func scanRecord(row pgx.Row) (model.Record, error) {
	var rec model.Record
	var entityType string
	var parentID, scopeID *string
	var published, overlay []byte

	err := row.Scan(
		&rec.ID, &rec.TenantID, &entityType, &parentID, &rec.ParentKey, &scopeID,
		&rec.SortKey, &rec.OverlaySortKey, &published, &overlay,
		&rec.InDraft, &rec.DraftRemove, &rec.InTrash, &rec.DraftOpen,
		&rec.TranslationLocked, &rec.TranslationChanged, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return model.Record{}, err
	}

	rec.Type = model.EntityType(entityType)
	rec.ParentID = derefString(parentID)
	rec.ScopeID = derefString(scopeID)
	if rec.Published, err = decodeFields(published); err != nil {
		return model.Record{}, fmt.Errorf("decode published fields of %s: %w", rec.ID, err)
	}
	if rec.Overlay, err = decodeFields(overlay); err != nil {
		return model.Record{}, fmt.Errorf("decode overlay fields of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (t *pgTx) GetRecord(ctx context.Context, id string) (model.Record, error) {
	var rec model.Record
	err := t.queryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`,
		func(row pgx.Row) error {
			var scanErr error
			rec, scanErr = scanRecord(row)
			return scanErr
		}, id)
	if isNoRows(err) {
		return model.Record{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (t *pgTx) ListSiblings(ctx context.Context, parentKey string) ([]model.Record, error) {
	// FOR UPDATE locks nothing on an empty collection, so two inserts could
	// both read zero siblings. The parent key lock closes that gap.
	if _, err := t.exec(ctx, lockSiblingsSQL, parentKey); err != nil {
		return nil, fmt.Errorf("lock siblings: %w", err)
	}
	records := make([]model.Record, 0)
	err := t.query(ctx,
		`SELECT `+recordColumns+`
		 FROM records
		 WHERE parent_key = $1
		 ORDER BY COALESCE(overlay_sort_key, sort_key), id
		 FOR UPDATE`,
		func(rows pgx.Rows) error {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		}, parentKey)
	if err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	return records, nil
}

func (t *pgTx) InsertRecord(ctx context.Context, rec model.Record) error {
	published, err := encodeJSON(rec.Published)
	if err != nil {
		return fmt.Errorf("encode published fields: %w", err)
	}
	if published == nil {
		empty := "{}"
		published = &empty
	}
	overlay, err := encodeJSON(rec.Overlay)
	if err != nil {
		return fmt.Errorf("encode overlay fields: %w", err)
	}

	_, err = t.exec(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		rec.ID, rec.TenantID, string(rec.Type), nullableString(rec.ParentID), rec.ParentKey, nullableString(rec.ScopeID),
		rec.SortKey, rec.OverlaySortKey, published, overlay,
		rec.InDraft, rec.DraftRemove, rec.InTrash, rec.DraftOpen,
		rec.TranslationLocked, rec.TranslationChanged, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRecord(ctx context.Context, rec model.Record) error {
	published, err := encodeJSON(rec.Published)
	if err != nil {
		return fmt.Errorf("encode published fields: %w", err)
	}
	if published == nil {
		empty := "{}"
		published = &empty
	}
	overlay, err := encodeJSON(rec.Overlay)
	if err != nil {
		return fmt.Errorf("encode overlay fields: %w", err)
	}

	affected, err := t.exec(ctx, updateRecordSQL,
		rec.ID, nullableString(rec.ParentID), rec.ParentKey, rec.SortKey, rec.OverlaySortKey,
		published, overlay, rec.InDraft, rec.DraftRemove, rec.InTrash,
		rec.DraftOpen, rec.TranslationLocked, rec.TranslationChanged, time.Now().UTC(),
		nullableString(rec.ScopeID))
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, rec.ID)
	}
	return nil
}

func (t *pgTx) UpdateSortKey(ctx context.Context, w SortKeyWrite) error {
	column := "sort_key"
	if w.Overlay {
		column = "overlay_sort_key"
	}

	affected, err := t.exec(ctx,
		`UPDATE records SET `+column+` = $2, updated_at = $4
		 WHERE id = $1 AND COALESCE(overlay_sort_key, sort_key) = $3`,
		w.ID, w.Key, w.Expected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update sort key: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: sort key of %s changed", model.ErrConcurrentModification, w.ID)
	}
	return nil
}

func (t *pgTx) DeleteRecord(ctx context.Context, id string) error {
	affected, err := t.exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return nil
}

func (t *pgTx) ListDependents(ctx context.Context, ownerID string) ([]model.Dependent, error) {
	deps := make([]model.Dependent, 0)
	err := t.query(ctx,
		`SELECT id, kind, owner_id, tenant_id, asset_ref, payload, created_at
		 FROM dependents WHERE owner_id = $1 ORDER BY created_at, id`,
		func(rows pgx.Rows) error {
			var d model.Dependent
			var kind string
			var assetRef *string
			var payload []byte
			if err := rows.Scan(&d.ID, &kind, &d.OwnerID, &d.TenantID, &assetRef, &payload, &d.CreatedAt); err != nil {
				return err
			}
			d.Kind = model.DependentKind(kind)
			d.AssetRef = derefString(assetRef)
			d.Payload = payload
			deps = append(deps, d)
			return nil
		}, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	return deps, nil
}

func (t *pgTx) InsertDependent(ctx context.Context, d model.Dependent) error {
	var payload *string
	if len(d.Payload) > 0 {
		raw := string(d.Payload)
		payload = &raw
	}
	_, err := t.exec(ctx,
		`INSERT INTO dependents (id, kind, owner_id, tenant_id, asset_ref, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, string(d.Kind), d.OwnerID, d.TenantID, nullableString(d.AssetRef), payload, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dependent: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteDependent(ctx context.Context, id string) error {
	if _, err := t.exec(ctx, `DELETE FROM dependents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete dependent: %w", err)
	}
	return nil
}
