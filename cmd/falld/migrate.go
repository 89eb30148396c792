package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/database"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/config"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/migrations"
)

var migrateList bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded SQL migrations in order",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateList, "list", false, "print the embedded migrations and exit")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if migrateList {
		names, err := migrations.Names()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	}

	cfg, err := config.Read(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewPostgresDB(cmd.Context(), &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	applied, err := migrations.Apply(cmd.Context(), db, logger)
	if err != nil {
		return err
	}
	logger.Info("Migrations complete", zap.Int("applied", len(applied)), zap.Strings("names", applied))
	return nil
}
