package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LuckySoftware/Aletheia/internal/store"
)

var migrateDown bool

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Migrate brings the PostgreSQL schema up to the version this binary
expects. The migration SQL is embedded, so nothing besides database
credentials is needed.

Example:
  aletheia migrate
  aletheia migrate --down`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if migrateDown {
			if err := store.MigrateDown(cfg.Database); err != nil {
				return err
			}
			fmt.Println("✓ Rolled back one migration")
			return nil
		}

		if err := store.Migrate(cfg.Database); err != nil {
			return err
		}
		fmt.Println("✓ Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration")
}
