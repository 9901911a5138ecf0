// Package main implements the entry point for the club operations backend,
// which runs the background task orchestration layer: durable task records,
// the job queues, the provisioning and role-batch workers, and the HTTP
// introspection surface.
package main

import (
	"flag"
	"log"
	"os"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply pending migrations and exit")
	flag.Parse()

	if err := realMain(*migrateOnly); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// realMain carries the error path so deferred cleanup runs before exit.
func realMain(migrateOnly bool) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	db, err := setupAppDatabase(cfg, logger)
	if err != nil {
		return err
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return err
	}

	if migrateOnly {
		logger.Info("migrate-only run complete")
		db.Close()
		os.Exit(0)
	}

	ints := defaultIntegrations(logger)

	app, err := newApplication(cfg, logger, db, ints)
	if err != nil {
		db.Close()
		return err
	}

	return app.run()
}
