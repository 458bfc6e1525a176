package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/repository/postgres"
	"github.com/pratik-mahalle/costlens/migrations"
)

func main() {
	list := flag.Bool("list", false, "list migration files and exit")
	flag.Parse()

	if *list {
		files, err := postgres.MigrationFiles(migrations.Files)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migrations: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database\n", db.Driver())

	applied, err := postgres.RunMigrations(db, migrations.Files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed after %d applied: %v\n", applied, err)
		os.Exit(1)
	}

	if applied == 0 {
		fmt.Println("Database is up to date")
		return
	}
	fmt.Printf("Applied %d migration(s)\n", applied)
}
