package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"survey-engine/internal/model"
)

func newSweepCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Promote expired trash entries and clear the clearing stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				report, err := ops.Sweep(ctx, deps.Now())
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "promoted: %d\ncleared:  %d\nfailed:   %d\n", report.Promoted, report.Cleared, report.Failed)
				for _, id := range report.Stuck {
					fmt.Fprintf(out, "stuck:    %s\n", id)
				}
				return nil
			})
		},
	}
}

func newTrashCmd(deps Deps) *cobra.Command {
	trashCmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect and manage the trash ledger",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trash entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawStage, _ := cmd.Flags().GetString("stage")
			scope, _ := cmd.Flags().GetString("draft-scope")
			filter := model.TrashFilter{DraftScope: scope}
			if rawStage != "" {
				stage, err := model.ParseTrashStage(rawStage)
				if err != nil {
					return err
				}
				filter.Stage = stage
			}
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				entries, err := ops.List(ctx, filter)
				if err != nil {
					return fmt.Errorf("failed to list trash: %w", err)
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	listCmd.Flags().String("stage", "", "filter by stage (initial, inDraft, clearing)")
	listCmd.Flags().String("draft-scope", "", "filter by owning survey draft")

	stuckCmd := &cobra.Command{
		Use:   "stuck",
		Short: "List clearing entries that reached the retry ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				entries, err := ops.Stuck(ctx)
				if err != nil {
					return fmt.Errorf("failed to list stuck entries: %w", err)
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <entry-id>",
		Short: "Permanently delete a clearing entry and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				if err := ops.Clear(ctx, args[0]); err != nil {
					return fmt.Errorf("clear %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
				return nil
			})
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <entry-id>",
		Short: "Bring a trashed record back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				view, err := ops.Restore(ctx, args[0])
				if err != nil {
					return fmt.Errorf("restore %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s %s under %s\n", view.Type, view.ID, view.ParentID)
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <entry-id>",
		Short: "Reset the clear attempts of a stuck entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTrash(cmd, deps, func(ctx context.Context, ops TrashOperator) error {
				if err := ops.ResetAttempts(ctx, args[0]); err != nil {
					return fmt.Errorf("reset %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
				return nil
			})
		},
	}

	trashCmd.AddCommand(listCmd, stuckCmd, clearCmd, restoreCmd, resetCmd)
	return trashCmd
}

func printEntries(out io.Writer, entries []model.TrashEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no entries")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTENANT\tTARGET\tSTAGE\tATTEMPTS\tEXPIRES\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.TenantID, e.TargetType, e.TargetID, e.Stage, e.Attempts, e.ExpireAt.Format(time.RFC3339), e.LastError)
	}
	return w.Flush()
}
