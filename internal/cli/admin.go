package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"survey-engine/internal/model"
)

func newMigrateCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Migrate == nil {
				return fmt.Errorf("migrations are not configured")
			}
			if err := deps.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

// newTokenCmd mints an access token for local development and smoke tests.
func newTokenCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.IssueToken == nil {
				return fmt.Errorf("token issuance is not configured")
			}
			tenant, _ := cmd.Flags().GetString("tenant")
			user, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			switch role {
			case model.RoleViewer, model.RoleEditor, model.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			token, err := deps.IssueToken(model.AuthClaims{UserID: user, TenantID: tenant, Role: role}, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "operator", "token subject")
	cmd.Flags().String("role", model.RoleEditor, "viewer, editor or admin")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
