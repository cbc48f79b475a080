package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	// lib/pq registers the postgres driver. The sqlite driver is registered
	// by golang-migrate's sqlite package through modernc.org/sqlite.
	_ "github.com/lib/pq"

	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/internal/db"
	"github.com/hashicorp-forge/doccontrol/internal/migrate"
)

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	configPath := flag.String("config", "", "Read the postgres connection from a doccontrol config file instead of -dsn")
	rollback := flag.Int("rollback", 0, "Roll back this many migrations instead of migrating up")
	showVersion := flag.Bool("version", false, "Print the current migration version and exit")
	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "doccontrol database migration tool\n\n")
		fmt.Fprintf(os.Stderr, "This binary applies the doccontrol schema to PostgreSQL or SQLite.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  PostgreSQL:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=doccontrol port=5432 sslmode=disable\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  From a config file:\n")
		fmt.Fprintf(os.Stderr, "    %s -config=doccontrol.hcl\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  SQLite:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=sqlite -dsn=\".doccontrol/doccontrol.db\"\n\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Error: %v\n", err)
		}
		if cfg.Postgres == nil {
			log.Fatal("Error: config file has no postgres block\n")
		}
		*driver = "postgres"
		*dsn = db.Config(cfg.Postgres).DSN()
	}

	if *dsn == "" {
		log.Fatal("Error: -dsn or -config is required\n\nRun with -help for usage information.")
	}
	if *driver != "postgres" && *driver != "sqlite" {
		log.Fatalf("Error: unsupported driver '%s' (must be 'postgres' or 'sqlite')\n", *driver)
	}

	log.Printf("Connecting to %s database...\n", *driver)
	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v\n", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v\n", err)
	}
	log.Printf("Connected to database\n")

	switch {
	case *showVersion:
		v, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
		if err != nil {
			log.Fatalf("Failed to read migration version: %v\n", err)
		}
		log.Printf("Migration version: %d (dirty: %t)\n", v, dirty)
	case *rollback > 0:
		log.Printf("Rolling back %d migrations...\n", *rollback)
		if err := migrate.Rollback(sqlDB, *driver, *rollback); err != nil {
			log.Fatalf("Rollback failed: %v\n", err)
		}
		log.Printf("Rollback completed\n")
	default:
		log.Printf("Running migrations...\n")
		if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
			log.Fatalf("Migration failed: %v\n", err)
		}
		log.Printf("All migrations completed successfully\n")
	}
}
