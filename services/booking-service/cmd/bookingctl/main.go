// Command bookingctl is the operator CLI for the booking service: migrations, demo data and
// slot inspection against the same store the service uses.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

var (
	driver      string
	databaseURL string
	sqlitePath  string
)

var rootCmd = &cobra.Command{
	Use:           "bookingctl",
	Short:         "Operate the booking service store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driver, "driver", runtime.Getenv("DB_DRIVER", "sqlite"), "store driver (postgres|sqlite)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection url")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", runtime.Getenv("SQLITE_PATH", "data/slotbook.db"), "sqlite database file")

	rootCmd.AddCommand(migrateCmd, seedDemoCmd, slotsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (storage.Store, error) {
	switch driver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteStore(conn), nil
	case "postgres":
		if databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for postgres")
		}
		pool, err := db.Open(ctx, databaseURL, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(pool), nil
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}
