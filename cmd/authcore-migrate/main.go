// Command authcore-migrate applies the PostgreSQL schema used by pgstore.
//
// Usage:
//
//	authcore-migrate [-config authcore.yaml] [-env .env] <up|down|status|version|redo|reset> [args...]
//
// The database URL is read like every other setting, from
// AUTHCORE_DATABASE_URL or database.url in the config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore/config"
	"github.com/MrEthical07/authcore/store/pgstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "optional config file")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <up|down|status|version|redo|reset> [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}

	logger := config.NewLogger(config.Settings{LogLevel: "info", LogFormat: "text"}, os.Stderr)

	dsn, err := config.DatabaseURL(config.Options{File: *configFile, EnvFile: *envFile})
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgstore.Open(ctx, dsn)
	if err != nil {
		logger.Error("open database", "error", err)
		return 1
	}
	defer db.Close()

	command := flag.Arg(0)
	logger.Info("running migration", "command", command)
	if err := pgstore.Migrate(ctx, db, command, flag.Args()[1:]...); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		return 1
	}
	logger.Info("migration finished", "command", command)
	return 0
}
