// Command hodei-migrate applies (or rolls back) the postgres schema behind
// pkg/storage/postgres, built on github.com/golang-migrate/migrate/v4
// since the postgres backend is a real versioned-schema deployment rather
// than an embedded bbolt file.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	dsn := flag.String("dsn", "", "postgres connection string (required)")
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of steps to apply (0 = all)")

	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Hodei Database Migration Tool")
	log.Println("=============================")

	if *dsn == "" {
		log.Fatal("-dsn is required")
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		log.Fatalf("load embedded migrations: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, *dsn)
	if err != nil {
		log.Fatalf("open migrator: %v", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("close source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("close database: %v", dbErr)
		}
	}()
	if err := run(m, *direction, *steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migration complete")
}

func run(m *migrate.Migrate, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("unknown direction %q (want up or down)", direction)
	}
}
