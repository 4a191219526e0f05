package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"slotbook/internal/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", "slotbook-migrate"))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	dir, err := findMigrationsDir()
	if err != nil {
		log.Error("migrations directory not found", slog.Any("err", err))
		os.Exit(1)
	}

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		log.Error("migrate setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Error("version lookup failed", slog.Any("err", verr))
			os.Exit(1)
		}
		log.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return
	default:
		log.Error("unknown command", slog.String("cmd", cmd))
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error("migration failed", slog.String("cmd", cmd), slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("migration complete", slog.String("cmd", cmd), slog.String("dir", dir))
}

// findMigrationsDir walks up from the working directory so the runner works
// from the repo root or any subdirectory.
func findMigrationsDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	current := cwd
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(current, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("no migrations directory above %s", cwd)
}
