package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yakoovad/teamsaas/internal/config"
	"github.com/yakoovad/teamsaas/internal/db"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	for _, sub := range []struct {
		command db.MigrateCommand
		short   string
	}{
		{command: db.MigrateUp, short: "Apply all pending migrations"},
		{command: db.MigrateDown, short: "Roll back the latest migration"},
		{command: db.MigrateStatus, short: "Print the migration status"},
	} {
		sub := sub
		cmd.AddCommand(&cobra.Command{
			Use:   string(sub.command),
			Short: sub.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(cmd.Context())
				if err != nil {
					return err
				}
				return errors.Wrapf(db.Migrate(cmd.Context(), cfg.DatabaseURL, sub.command), "migrate %s", sub.command)
			},
		})
	}

	return cmd
}
