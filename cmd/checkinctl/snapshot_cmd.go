package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

type snapshotLine struct {
	ID            string `json:"id"`
	ChangeType    string `json:"change_type"`
	Reason        string `json:"reason"`
	EffectiveDate string `json:"effective_date"`
	CreatedAt     string `json:"created_at"`
}

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var employeeID string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the initial snapshot for an employee without history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Bootstrapper.BootstrapInitial(cmd.Context(), employeeID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"snapshot_id": res.Snapshot.ID,
				"created":     res.Created,
			})
		},
	}

	cmd.Flags().StringVar(&employeeID, "employee", "", "Employee (teammate) id (required)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var employeeID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List snapshots of an employee, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.Snapshots.HistoryFor(cmd.Context(), employeeID)
			if err != nil {
				return err
			}
			lines := make([]snapshotLine, 0, len(history))
			for _, s := range history {
				lines = append(lines, snapshotLine{
					ID:            s.ID,
					ChangeType:    string(s.ChangeType),
					Reason:        s.Reason,
					EffectiveDate: tenure.FormatDate(s.EffectiveDate),
					CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
				})
			}
			return writeJSON(cmd.OutOrStdout(), lines)
		},
	}

	cmd.Flags().StringVar(&employeeID, "employee", "", "Employee (teammate) id (required)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func newDiffCmd(opts *rootOptions) *cobra.Command {
	var snapshotID string

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare a snapshot with the previous one of the same employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			diff, err := a.Changes.DiffSnapshot(cmd.Context(), snapshotID)
			if err != nil {
				return err
			}
			out := map[string]any{
				"snapshot_id":          diff.Snapshot.ID,
				"previous_snapshot_id": nil,
				"consistent":           diff.Consistent,
				"report":               diff.Report,
			}
			if diff.Previous != nil {
				out["previous_snapshot_id"] = diff.Previous.ID
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Snapshot id (required)")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}
