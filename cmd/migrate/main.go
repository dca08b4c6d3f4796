// migrate applies the embedded schema migrations to DATABASE_URL.
package main

import (
	"flag"
	"fmt"
	"os"

	"medianest/backend/internal/config"
	"medianest/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fail("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fail("migrate: %v", err)
	}
	fmt.Printf("migrations %s applied\n", *direction)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
