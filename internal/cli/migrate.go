package cli

import (
	"fmt"

	"shefa-backend/internal/database"
	"shefa-backend/internal/units"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger(cmd)
			db, closeDB, err := rootOpts.open(log)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.Migrate(db, log); err != nil {
				return err
			}
			if seed {
				n, err := units.Seed(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d units\n", n)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed-units", true, "also seed the unit catalog")
	return cmd
}

// NewSeedUnitsCommand creates the seed-units command.
func NewSeedUnitsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-units",
		Short: "Upsert the built-in unit catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger(cmd)
			db, closeDB, err := rootOpts.open(log)
			if err != nil {
				return err
			}
			defer closeDB()

			n, err := units.Seed(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d units\n", n)
			return nil
		},
	}
}
