package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"shefa-backend/internal/engine"
	"shefa-backend/internal/models"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// NewRecomputeCommand creates the recompute command. It runs the same engine
// path as POST /api/orgs/:orgId/recompute.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		orgID  uint
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every derived cost of one organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == 0 {
				return fmt.Errorf("--org is required")
			}
			log := rootOpts.logger(cmd)
			db, closeDB, err := rootOpts.open(log)
			if err != nil {
				return err
			}
			defer closeDB()

			var org models.Organization
			if err := db.First(&org, orgID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("organization %d not found", orgID)
				}
				return err
			}

			store, err := rootOpts.store(db)
			if err != nil {
				return err
			}
			eng := engine.New(store, log)
			report, err := eng.RecomputeOrg(cmd.Context(), engine.Actor{OrgID: org.ID, UserName: "costctl"})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "%s: %d items, %d recipes, %d products, %d changed in %s\n",
				org.Name, report.Items, report.Recipes, report.Products, report.Changed, report.Duration)
			return nil
		},
	}
	cmd.Flags().UintVar(&orgID, "org", 0, "organization id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
