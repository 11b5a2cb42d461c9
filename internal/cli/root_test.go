package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
	"survey-engine/internal/service"
)

type mockTrash struct {
	mock.Mock
}

func (m *mockTrash) Sweep(ctx context.Context, now time.Time) (model.SweepReport, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(model.SweepReport), args.Error(1)
}

func (m *mockTrash) Clear(ctx context.Context, entryID string) error {
	return m.Called(ctx, entryID).Error(0)
}

func (m *mockTrash) Restore(ctx context.Context, entryID string) (model.RecordView, error) {
	args := m.Called(ctx, entryID)
	return args.Get(0).(model.RecordView), args.Error(1)
}

func (m *mockTrash) Stuck(ctx context.Context) ([]model.TrashEntry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.TrashEntry), args.Error(1)
}

func (m *mockTrash) ResetAttempts(ctx context.Context, entryID string) error {
	return m.Called(ctx, entryID).Error(0)
}

func (m *mockTrash) List(ctx context.Context, filter model.TrashFilter) ([]model.TrashEntry, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.TrashEntry), args.Error(1)
}

func depsWith(ops TrashOperator, closed *bool) Deps {
	return Deps{
		OpenTrash: func(context.Context) (TrashOperator, func(), error) {
			return ops, func() { *closed = true }, nil
		},
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), deps, args, &out)
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	t.Parallel()
	ops := &mockTrash{}
	closed := false
	deps := depsWith(ops, &closed)
	ops.On("Sweep", mock.Anything, deps.Now()).Return(model.SweepReport{Promoted: 2, Cleared: 1, Stuck: []string{"t-9"}}, nil)

	out, err := run(t, deps, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "promoted: 2")
	assert.Contains(t, out, "cleared:  1")
	assert.Contains(t, out, "stuck:    t-9")
	assert.True(t, closed)
	ops.AssertExpectations(t)
}

func TestTrashCommandsArgs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
	}{
		{name: "clear without id", args: []string{"trash", "clear"}},
		{name: "restore with two ids", args: []string{"trash", "restore", "a", "b"}},
		{name: "sweep with args", args: []string{"sweep", "now"}},
		{name: "unknown stage", args: []string{"trash", "list", "--stage", "gone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ops := &mockTrash{}
			closed := false
			_, err := run(t, depsWith(ops, &closed), tt.args...)
			require.Error(t, err)
			ops.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestTenantFlagScopesContext(t *testing.T) {
	t.Parallel()
	ops := &mockTrash{}
	closed := false
	tenantScoped := mock.MatchedBy(func(ctx context.Context) bool {
		actor, ok := service.ActorFrom(ctx)
		return ok && actor.TenantID == "tenant-a"
	})
	ops.On("List", tenantScoped, model.TrashFilter{Stage: model.StageClearing}).Return([]model.TrashEntry{{
		ID:         "t-1",
		TenantID:   "tenant-a",
		TargetType: model.EntityQuestion,
		TargetID:   "q-1",
		Stage:      model.StageClearing,
		Attempts:   3,
		LastError:  "boom",
	}}, nil)

	out, err := run(t, depsWith(ops, &closed), "--tenant", "tenant-a", "trash", "list", "--stage", "clearing")
	require.NoError(t, err)
	assert.Contains(t, out, "t-1")
	assert.Contains(t, out, "question/q-1")
	assert.Contains(t, out, "boom")
	ops.AssertExpectations(t)
}

func TestClearAndResetCommands(t *testing.T) {
	t.Parallel()
	ops := &mockTrash{}
	closed := false
	withoutActor := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := service.ActorFrom(ctx)
		return !ok
	})
	ops.On("Clear", withoutActor, "t-1").Return(model.ErrTooManyAttempts).Once()
	ops.On("ResetAttempts", withoutActor, "t-1").Return(nil).Once()
	ops.On("Clear", withoutActor, "t-1").Return(nil).Once()

	_, err := run(t, depsWith(ops, &closed), "trash", "clear", "t-1")
	require.ErrorIs(t, err, model.ErrTooManyAttempts)

	out, err := run(t, depsWith(ops, &closed), "trash", "reset", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, "reset t-1")

	out, err = run(t, depsWith(ops, &closed), "trash", "clear", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared t-1")
	ops.AssertExpectations(t)
}

func TestStuckCommandEmpty(t *testing.T) {
	t.Parallel()
	ops := &mockTrash{}
	closed := false
	ops.On("Stuck", mock.Anything).Return([]model.TrashEntry{}, nil)

	out, err := run(t, depsWith(ops, &closed), "trash", "stuck")
	require.NoError(t, err)
	assert.Equal(t, "no entries\n", out)
}

func TestRestoreCommand(t *testing.T) {
	t.Parallel()
	ops := &mockTrash{}
	closed := false
	ops.On("Restore", mock.Anything, "t-2").Return(model.RecordView{ID: "i-1", Type: model.EntityItem, ParentID: "s-1"}, nil)

	out, err := run(t, depsWith(ops, &closed), "trash", "restore", "t-2")
	require.NoError(t, err)
	assert.Equal(t, "restored item i-1 under s-1\n", out)
}

func TestOpenFailureIsReported(t *testing.T) {
	t.Parallel()
	boom := errors.New("database unreachable")
	deps := Deps{OpenTrash: func(context.Context) (TrashOperator, func(), error) { return nil, nil, boom }}

	_, err := run(t, deps, "sweep")
	require.ErrorIs(t, err, boom)
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()
	tokens, err := service.NewTokenService("cli-secret")
	require.NoError(t, err)
	deps := Deps{IssueToken: tokens.IssueToken}

	out, err := run(t, deps, "token", "--tenant", "tenant-a", "--role", model.RoleAdmin)
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(out[:len(out)-1], "access")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "operator", claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	_, err = run(t, deps, "token", "--tenant", "tenant-a", "--role", "owner")
	require.Error(t, err)

	_, err = run(t, deps, "token")
	require.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	t.Parallel()
	called := false
	deps := Deps{Migrate: func(context.Context) error { called = true; return nil }}

	out, err := run(t, deps, "migrate")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "schema is up to date\n", out)
}
