package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/app"
	"github.com/iliyamo/exam-seating/internal/config"
	"github.com/iliyamo/exam-seating/internal/logger"
	"github.com/iliyamo/exam-seating/internal/middleware"
	"github.com/iliyamo/exam-seating/internal/queue"
	"github.com/iliyamo/exam-seating/internal/service"
)

// globals holds the persistent flags.
type globals struct {
	store    string
	logLevel string
	migrate  bool
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "seatctl",
		Short:         "Operator tool for the exam seating service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv()
			log, err := logger.New(g.logLevel, "console", "seatctl")
			if err != nil {
				return err
			}
			g.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.log != nil {
				_ = g.log.Sync()
			}
		},
	}

	defaultStore := strings.ToLower(os.Getenv("STORE_DRIVER"))
	if defaultStore == "" {
		defaultStore = config.StoreMySQL
	}
	root.PersistentFlags().StringVar(&g.store, "store", defaultStore, "storage backend: mysql or memory")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().BoolVar(&g.migrate, "migrate", false, "apply migrations before running the command")

	root.AddCommand(
		newExtractCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newHashPasswordCmd(),
		newCreateAdminCmd(g),
		newMigrateCmd(g),
	)
	return root
}

// openStores connects the selected store.  DB_* variables are only read
// for mysql.
func (g *globals) openStores(ctx context.Context) (*app.Stores, error) {
	var db config.DatabaseConfig
	if g.store == config.StoreMySQL {
		db = config.LoadDatabase()
	}
	return app.OpenStores(ctx, g.store, db, g.migrate, g.log)
}

// services builds the seating and import services.  Imports made here
// flush the server's lookup cache and emit audit events like the API does.
func (g *globals) services(stores *app.Stores) (*service.SeatingService, *service.Importer, func()) {
	rdb, err := config.NewRedisClient()
	if err != nil {
		g.log.Warn("redis unavailable; lookup cache not flushed", zap.Error(err))
		rdb = nil
	}
	flusher := middleware.NewCacheFlusher(config.LoadCacheConfig(), rdb)
	url, enabled := config.LoadAuditQueue()
	pub := queue.NewPublisher(url, enabled, g.log)

	cleanup := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return service.NewSeatingService(stores.Rooms, stores.Seats, flusher, pub, g.log),
		service.NewImporter(stores.Rooms, stores.Seats, flusher, pub, g.log),
		cleanup
}
