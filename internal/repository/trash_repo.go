package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"survey-engine/internal/model"
)

const trashColumns = `id, tenant_id, target_type, target_id, stage, draft_scope, parent_entry_id,
	owner_chain, expire_at, attempts, last_error, deleted_by, created_at`

func scanTrash(row pgx.Row) (model.TrashEntry, error) {
	var e model.TrashEntry
	var targetType, stage string
	var draftScope, parentEntryID, lastError, deletedBy *string
	var ownerChain []byte

	err := row.Scan(&e.ID, &e.TenantID, &targetType, &e.TargetID, &stage, &draftScope, &parentEntryID,
		&ownerChain, &e.ExpireAt, &e.Attempts, &lastError, &deletedBy, &e.CreatedAt)
	if err != nil {
		return model.TrashEntry{}, err
	}

	e.TargetType = model.EntityType(targetType)
	e.Stage = model.TrashStage(stage)
	e.DraftScope = derefString(draftScope)
	e.ParentEntryID = derefString(parentEntryID)
	e.LastError = derefString(lastError)
	e.DeletedBy = derefString(deletedBy)
	if len(ownerChain) > 0 {
		if err := json.Unmarshal(ownerChain, &e.OwnerChain); err != nil {
			return model.TrashEntry{}, fmt.Errorf("decode owner chain of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func (t *pgTx) InsertTrash(ctx context.Context, e model.TrashEntry) error {
	chain, err := encodeJSON(e.OwnerChain)
	if err != nil {
		return fmt.Errorf("encode owner chain: %w", err)
	}

	_, err = t.exec(ctx,
		`INSERT INTO trash_entries (`+trashColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.TenantID, string(e.TargetType), e.TargetID, string(e.Stage),
		nullableString(e.DraftScope), nullableString(e.ParentEntryID), chain,
		e.ExpireAt, e.Attempts, nullableString(e.LastError), nullableString(e.DeletedBy), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create trash entry: %w", err)
	}
	return nil
}

func (t *pgTx) getTrashWhere(ctx context.Context, where string, arg any) (model.TrashEntry, error) {
	var entry model.TrashEntry
	err := t.queryRow(ctx,
		`SELECT `+trashColumns+` FROM trash_entries WHERE `+where,
		func(row pgx.Row) error {
			var scanErr error
			entry, scanErr = scanTrash(row)
			return scanErr
		}, arg)
	if isNoRows(err) {
		return model.TrashEntry{}, model.ErrTrashNotFound
	}
	if err != nil {
		return model.TrashEntry{}, fmt.Errorf("find trash entry: %w", err)
	}
	return entry, nil
}

func (t *pgTx) GetTrash(ctx context.Context, id string) (model.TrashEntry, error) {
	return t.getTrashWhere(ctx, `id = $1 FOR UPDATE`, id)
}

func (t *pgTx) FindTrashByTarget(ctx context.Context, targetID string) (model.TrashEntry, error) {
	return t.getTrashWhere(ctx, `target_id = $1 FOR UPDATE`, targetID)
}

func (t *pgTx) UpdateTrash(ctx context.Context, e model.TrashEntry) error {
	affected, err := t.exec(ctx,
		`UPDATE trash_entries
		 SET stage = $2, draft_scope = $3, expire_at = $4, attempts = $5, last_error = $6
		 WHERE id = $1`,
		e.ID, string(e.Stage), nullableString(e.DraftScope), e.ExpireAt, e.Attempts, nullableString(e.LastError))
	if err != nil {
		return fmt.Errorf("update trash entry: %w", err)
	}
	if affected == 0 {
		return model.ErrTrashNotFound
	}
	return nil
}

func (t *pgTx) DeleteTrash(ctx context.Context, id string) error {
	affected, err := t.exec(ctx, `DELETE FROM trash_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trash entry: %w", err)
	}
	if affected == 0 {
		return model.ErrTrashNotFound
	}
	return nil
}

func (t *pgTx) listTrash(ctx context.Context, where string, args ...any) ([]model.TrashEntry, error) {
	query := `SELECT ` + trashColumns + ` FROM trash_entries`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY created_at, id`

	entries := make([]model.TrashEntry, 0)
	err := t.query(ctx, query, func(rows pgx.Rows) error {
		e, err := scanTrash(rows)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return entries, nil
}

func (t *pgTx) ListTrash(ctx context.Context, filter model.TrashFilter) ([]model.TrashEntry, error) {
	var clauses []string
	var args []any
	add := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}
	add("tenant_id", filter.TenantID)
	add("stage", string(filter.Stage))
	add("draft_scope", filter.DraftScope)

	return t.listTrash(ctx, strings.Join(clauses, " AND "), args...)
}

func (t *pgTx) ListTrashByParent(ctx context.Context, parentEntryID string) ([]model.TrashEntry, error) {
	return t.listTrash(ctx, `parent_entry_id = $1`, parentEntryID)
}

func (t *pgTx) ListExpiredTrash(ctx context.Context, now time.Time) ([]model.TrashEntry, error) {
	return t.listTrash(ctx, `stage = $1 AND expire_at <= $2`, string(model.StageInitial), now)
}

func (t *pgTx) ListClearingTrash(ctx context.Context) ([]model.TrashEntry, error) {
	return t.listTrash(ctx, `stage = $1`, string(model.StageClearing))
}
