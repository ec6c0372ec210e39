package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/config"
	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed to initialize")
	}
	defer m.Close()

	command := args[0]
	switch command {
	case "up":
		err = m.Up()
	case "down":
		// One step unless told otherwise; "down all" reverts everything.
		switch {
		case len(args) > 1 && args[1] == "all":
			err = m.Down()
		default:
			err = m.Steps(-stepArg(args, 1))
		}
	case "steps":
		if len(args) < 2 {
			log.Fatal().Msg("steps requires a signed count")
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal().Err(convErr).Msg("Invalid step count")
		}
		err = m.Steps(n)
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
			log.Fatal().Err(verErr).Msg("Version failed")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current schema version")
		return
	case "force":
		if len(args) < 2 {
			log.Fatal().Msg("force requires a version argument")
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal().Err(convErr).Msg("Invalid version")
		}
		err = m.Force(v)
	default:
		printUsage()
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", command).Msg("Schema already up to date")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	log.Info().Str("command", command).Msg("Migration applied")
}

func stepArg(args []string, i int) int {
	if len(args) <= i {
		return 1
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down [N|all], steps <N>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
