package main

import (
	"github.com/spf13/cobra"

	"github.com/ogurasousui/checkin-ledger/internal/core/management"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

func newEnergyCmd(opts *rootOptions) *cobra.Command {
	var (
		teammateID   string
		assignmentID string
		energy       int
		effective    string
		reason       string
	)

	cmd := &cobra.Command{
		Use:   "energy",
		Short: "Set the energy percentage of an assignment tenure",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseOptionalDate(effective)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := operatorContext(cmd.Context(), a)
			if err != nil {
				return err
			}
			res, err := a.Management.SetAssignmentEnergy(cmd.Context(), management.SetEnergyInput{
				TeammateID:       teammateID,
				AssignmentID:     assignmentID,
				EnergyPercentage: energy,
				EffectiveDate:    day,
				ActorID:          rc.ActorID,
				Reason:           reason,
				RequestContext:   rc,
			})
			if err != nil {
				return err
			}

			out := map[string]any{"changed": res.Transition.Changed(), "snapshot_id": nil}
			if res.Snapshot != nil {
				out["snapshot_id"] = res.Snapshot.ID
			}
			if res.Transition.Current != nil {
				out["started_on"] = tenure.FormatDate(res.Transition.Current.StartedOn)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&teammateID, "teammate", "", "Teammate id (required)")
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "Assignment id (required)")
	cmd.Flags().IntVar(&energy, "percentage", 0, "Energy percentage 0-100 (required)")
	cmd.Flags().StringVar(&effective, "effective-date", "", "Effective date (UTC, YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the snapshot")
	_ = cmd.MarkFlagRequired("teammate")
	_ = cmd.MarkFlagRequired("assignment")
	_ = cmd.MarkFlagRequired("percentage")
	return cmd
}

func newMilestoneCmd(opts *rootOptions) *cobra.Command {
	var (
		teammateID  string
		abilityID   string
		level       int
		certifiedBy string
		attainedOn  string
		reason      string
	)

	cmd := &cobra.Command{
		Use:   "milestone",
		Short: "Record an ability milestone and append a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseOptionalDate(attainedOn)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := operatorContext(cmd.Context(), a)
			if err != nil {
				return err
			}
			in := management.RecordMilestoneInput{
				TeammateID:     teammateID,
				AbilityID:      abilityID,
				Level:          level,
				AttainedOn:     day,
				ActorID:        rc.ActorID,
				Reason:         reason,
				RequestContext: rc,
			}
			if certifiedBy != "" {
				in.CertifiedByID = &certifiedBy
			}
			snap, err := a.Management.RecordMilestone(cmd.Context(), in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"snapshot_id": snap.ID})
		},
	}

	cmd.Flags().StringVar(&teammateID, "teammate", "", "Teammate id (required)")
	cmd.Flags().StringVar(&abilityID, "ability", "", "Ability id (required)")
	cmd.Flags().IntVar(&level, "level", 0, "Milestone level, positive (required)")
	cmd.Flags().StringVar(&certifiedBy, "certified-by", "", "Certifier principal id")
	cmd.Flags().StringVar(&attainedOn, "attained-on", "", "Attainment date (UTC, YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the snapshot")
	_ = cmd.MarkFlagRequired("teammate")
	_ = cmd.MarkFlagRequired("ability")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}
