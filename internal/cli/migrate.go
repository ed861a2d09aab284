package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/infra/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Database.URL == "" {
			slog.Error("database.url (or DATABASE_URL) is not set")
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := db.Migrate(ctx); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrations applied")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
