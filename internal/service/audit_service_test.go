package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
	"survey-engine/internal/repository"
)

func TestAuditService_RecordsEngineEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Collaborators{}, DefaultSettings())
	log := repository.NewMemoryAuditLog()
	audit := NewAuditService(log, f.bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	audit.Start(ctx)

	actorCtx := WithActor(f.ctx, Actor{TenantID: tenant, UserID: "user-1"})
	workspace, err := f.overlay.Create(actorCtx, CreateInput{TenantID: tenant, Type: model.EntityWorkspace})
	require.NoError(t, err)
	survey, err := f.overlay.Create(actorCtx, CreateInput{TenantID: tenant, Type: model.EntitySurvey, ParentID: workspace.ID})
	require.NoError(t, err)
	entry, err := f.trash.SoftDelete(actorCtx, survey.ID, SoftDeleteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return log.Len() == 3 }, time.Second, 10*time.Millisecond)

	entries, meta, err := audit.Query(actorCtx, model.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Total)
	require.Len(t, entries, 3)

	trashed, _, err := audit.Query(actorCtx, model.AuditQuery{Action: string(event.TypeRecordTrashed)})
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, "user-1", trashed[0].ActorID)
	assert.Equal(t, "survey:"+survey.ID, trashed[0].Resource)
	assert.Contains(t, string(trashed[0].Payload), entry.ID)
}

func TestAuditService_QueryScopesToTenant(t *testing.T) {
	t.Parallel()
	log := repository.NewMemoryAuditLog()
	audit := NewAuditService(log, event.NewBus())
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	events := []event.Event{
		{ID: "a1", Type: event.TypeRecordCreated, TenantID: "tenant-a", Payload: model.Ref{Type: model.EntitySurvey, ID: "s1"}, Timestamp: now.Format(time.RFC3339Nano)},
		{ID: "a2", Type: event.TypeRecordWritten, TenantID: "tenant-a", Payload: model.Ref{Type: model.EntitySurvey, ID: "s1"}, Timestamp: now.Add(time.Minute).Format(time.RFC3339Nano)},
		{ID: "b1", Type: event.TypeRecordCreated, TenantID: "tenant-b", Timestamp: now.Format(time.RFC3339Nano)},
		{ID: "sweep", Type: event.TypeSweepCompleted, Payload: model.SweepReport{Promoted: 1}, Timestamp: now.Format(time.RFC3339Nano)},
	}
	for _, e := range events {
		require.NoError(t, audit.Record(ctx, e))
	}
	// Redelivery is absorbed.
	require.NoError(t, audit.Record(ctx, events[0]))

	tests := []struct {
		name  string
		ctx   context.Context
		query model.AuditQuery
		want  []string
	}{
		{
			name: "tenant sees own entries newest first",
			ctx:  WithActor(ctx, Actor{TenantID: "tenant-a"}),
			want: []string{"a2", "a1"},
		},
		{
			name:  "tenant cannot widen to another tenant",
			ctx:   WithActor(ctx, Actor{TenantID: "tenant-b"}),
			query: model.AuditQuery{TenantID: "tenant-a"},
			want:  []string{"b1"},
		},
		{
			name:  "operator sees everything",
			ctx:   ctx,
			query: model.AuditQuery{Action: string(event.TypeSweepCompleted)},
			want:  []string{"sweep"},
		},
		{
			name:  "time window",
			ctx:   WithActor(ctx, Actor{TenantID: "tenant-a"}),
			query: model.AuditQuery{From: now.Add(30 * time.Second)},
			want:  []string{"a2"},
		},
		{
			name:  "paging",
			ctx:   WithActor(ctx, Actor{TenantID: "tenant-a"}),
			query: model.AuditQuery{Page: 2, Limit: 1},
			want:  []string{"a1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entries, _, err := audit.Query(tt.ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, _, err := audit.Query(ctx, model.AuditQuery{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, model.ErrValidation)
}
