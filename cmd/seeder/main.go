package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
)

// Loads demo data for local development. Run after migrations.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "database:", err)
		os.Exit(1)
	}
	defer conn.Close()

	seedFiles := []string{
		"seed/customers.sql",
		"seed/groups.sql",
		"seed/templates.sql",
		"seed/campaigns.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", file, err)
			os.Exit(1)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to execute %s: %v\n", file, err)
			os.Exit(1)
		}
		fmt.Println("seeded:", file)
	}

	fmt.Println("database seeding completed")
}
