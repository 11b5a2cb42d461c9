package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"survey-engine/internal/model"
	"survey-engine/internal/service"
)

// TrashOperator is the slice of the trash service the operator commands
// drive.
type TrashOperator interface {
	Sweep(ctx context.Context, now time.Time) (model.SweepReport, error)
	Clear(ctx context.Context, entryID string) error
	Restore(ctx context.Context, entryID string) (model.RecordView, error)
	Stuck(ctx context.Context) ([]model.TrashEntry, error)
	ResetAttempts(ctx context.Context, entryID string) error
	List(ctx context.Context, filter model.TrashFilter) ([]model.TrashEntry, error)
}

// Deps wires the commands to the engine. The returned close func releases
// whatever OpenTrash acquired.
type Deps struct {
	OpenTrash  func(ctx context.Context) (TrashOperator, func(), error)
	Migrate    func(ctx context.Context) error
	IssueToken func(claims model.AuthClaims, ttl time.Duration) (string, error)
	Now        func() time.Time
}

func NewRootCmd(deps Deps) *cobra.Command {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	root := &cobra.Command{
		Use:           "surveyctl",
		Short:         "Operate the survey engine store",
		Long:          "Run trash maintenance, schema migrations and token issuance against the survey engine database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("tenant", "", "restrict the command to one tenant")

	root.AddCommand(
		newSweepCmd(deps),
		newTrashCmd(deps),
		newMigrateCmd(deps),
		newTokenCmd(deps),
	)
	return root
}

// Execute runs the command tree and returns the first error.
func Execute(ctx context.Context, deps Deps, args []string, out io.Writer) error {
	root := NewRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// operatorContext scopes the command to --tenant when given. Without it the
// service treats the caller as the operator and skips tenant checks.
func operatorContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		return ctx
	}
	return service.WithActor(ctx, service.Actor{TenantID: tenant, UserID: "surveyctl"})
}

func withTrash(cmd *cobra.Command, deps Deps, run func(ctx context.Context, ops TrashOperator) error) error {
	if deps.OpenTrash == nil {
		return fmt.Errorf("trash operations are not configured")
	}
	ctx := operatorContext(cmd)
	ops, closeFn, err := deps.OpenTrash(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return run(ctx, ops)
}
