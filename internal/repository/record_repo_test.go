package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateRecordSQL_SetsEveryMutableColumn(t *testing.T) {
	t.Parallel()

	immutable := map[string]bool{"id": true, "tenant_id": true, "entity_type": true, "created_at": true}
	for _, column := range strings.Split(recordColumns, ",") {
		column = strings.TrimSpace(column)
		if immutable[column] {
			continue
		}
		t.Run(column, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, updateRecordSQL, column+" = $")
		})
	}
}

func TestLockSiblingsSQL_IsTransactionScoped(t *testing.T) {
	t.Parallel()
	assert.Contains(t, lockSiblingsSQL, "pg_advisory_xact_lock")
	assert.Contains(t, lockSiblingsSQL, "$1")
}
