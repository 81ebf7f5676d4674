package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"studentevals-backend/internal/config"
	"studentevals-backend/internal/db"
)

const stateDir = "dev/.state"

func writeLocalConfig() error {
	_, err := os.Stat("config.local.json5")
	if err == nil {
		fmt.Println("config.local.json5 already exists, leaving it alone")
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	cfg.Database = filepath.Join(stateDir, "evals.db")
	cfg.CookiesFile = filepath.Join(stateDir, "cookies.txt")
	cfg.PageCacheDir = filepath.Join(stateDir, "pages")
	cfg.Schedule = config.Schedule{}

	contents, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println("writing config.local.json5")
	return os.WriteFile("config.local.json5", contents, 0600)
}

func createDb(ctx context.Context) error {
	path := filepath.Join(stateDir, "evals.db")
	fmt.Println("creating database at", path)
	conn, err := db.Open(ctx, path)
	if err != nil {
		return err
	}
	return conn.Close()
}

func create(ctx context.Context, recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll(stateDir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll(stateDir, 0777)
	if err != nil {
		return err
	}

	err = createDb(ctx)
	if err != nil {
		return err
	}
	err = writeLocalConfig()
	if err != nil {
		return err
	}

	slog.Info("put the session cookies in " + filepath.Join(stateDir, "cookies.txt") + " or configure cookie_service and run `studentevals reauth`.")
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "recreate the dev environment from scratch")
	flag.Parse()

	err := create(context.Background(), *recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}

	slog.Info("dev environment created sucessfully!")
}
