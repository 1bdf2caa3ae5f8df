package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/migrate"
)

const serviceName = "migrate"

type options struct {
	dir     string
	name    string
	version string
}

// sourceTree commands edit or check migration files and never open the DB.
var sourceTree = map[string]func(options) error{
	"create":   createMigration,
	"validate": validateMigrations,
}

// database commands run against PHARMACY_DB_DSN.
var database = map[string]func(context.Context, *sql.DB, options) error{
	"up":      gooseCommand("up"),
	"down":    gooseCommand("down"),
	"status":  gooseCommand("status"),
	"version": migrateToVersion,
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty means the embedded set (or the source tree for create/validate)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	if run, ok := sourceTree[*cmd]; ok {
		if err := run(opts); err != nil {
			exitf("%s: %v", *cmd, err)
		}
		return
	}
	run, ok := database[*cmd]
	if !ok {
		exitf("unknown -cmd value: %s", *cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		exitf("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if dbClient.Dialect() == db.DriverSQLite {
		exitf("goose migrations target postgres; sqlite schemas are migrated by the api at boot")
	}
	conn, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", err)
		os.Exit(1)
	}

	if err := run(ctx, conn, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func gooseCommand(name string) func(context.Context, *sql.DB, options) error {
	return func(ctx context.Context, conn *sql.DB, opts options) error {
		return migrate.Run(ctx, conn, opts.dir, name)
	}
}

func migrateToVersion(ctx context.Context, conn *sql.DB, opts options) error {
	if opts.version == "" {
		return fmt.Errorf("missing -version")
	}
	return migrate.MigrateToVersion(ctx, conn, opts.dir, opts.version)
}

func createMigration(opts options) error {
	if opts.name == "" {
		return fmt.Errorf("missing -name")
	}
	path, err := migrate.CreateSQLMigration(sourceDir(opts.dir), opts.name)
	if err != nil {
		return err
	}
	fmt.Println("created migration:", path)
	return nil
}

func validateMigrations(opts options) error {
	if err := migrate.ValidateDir(sourceDir(opts.dir)); err != nil {
		return err
	}
	if err := migrate.ValidateEmbedded(); err != nil {
		return fmt.Errorf("embedded migrations: %w", err)
	}
	fmt.Println("migration validation passed")
	return nil
}

func sourceDir(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
