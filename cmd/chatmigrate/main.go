// Command chatmigrate applies or reverts the chat schema on PostgreSQL.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/tavarakyyti/chat/internal/storage/postgres"
)

func main() {
	down := flag.Bool("down", false, "revert every migration instead of applying them")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	var err error
	if *down {
		err = postgres.MigrateDown(dsn)
	} else {
		err = postgres.MigrateUp(dsn)
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}
