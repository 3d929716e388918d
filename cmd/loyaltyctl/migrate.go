package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holyloy/komarce/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and seed the Global Number counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		created, err := database.EnsureAdmin(rt.db, rt.cfg.AdminBootstrapPhone, rt.cfg.AdminBootstrapPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}

		return printJSON(cmd, map[string]any{
			"migrated":      true,
			"admin_created": created,
		})
	},
}
