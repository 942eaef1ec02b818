package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/homecam/internal/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for sqlite or postgres storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Type != "sqlite" && cfg.Storage.Type != "postgres" {
				return fmt.Errorf("storage type %s has no schema", cfg.Storage.Type)
			}
			if cfg.Storage.Type == "sqlite" {
				if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
					return fmt.Errorf("create database directory: %w", err)
				}
			}

			db, err := database.Open(database.Config{
				Type:       cfg.Storage.Type,
				SQLitePath: cfg.Storage.Path,
				DSN:        cfg.Storage.DSN,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if !status {
				n, err := db.Migrate()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Applied %d migration(s)\n", n)
			}

			st, err := db.MigrationStatus()
			if err != nil {
				return err
			}
			if st.Dirty {
				fmt.Fprintf(out, "Schema version %d is dirty; fix it by hand before migrating again\n", st.Current)
			}
			rows := make([][]string, len(st.Migrations))
			for i, m := range st.Migrations {
				state := "pending"
				if st.Applied(m) {
					state = "applied"
				}
				rows[i] = []string{strconv.FormatUint(uint64(m.Version), 10), m.Name, state}
			}
			printTable(out, tableView{
				Title:   "Schema migrations (" + cfg.Storage.Type + ")",
				Headers: []string{"Version", "Name", "Status"},
				Rows:    rows,
				Numeric: []int{0},
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Show migration status without applying anything")
	return cmd
}
