package database

import (
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

// DB is the shared connection pool. Handlers and workers read it directly;
// tests swap in a sqlmock-backed instance.
var DB *sqlx.DB

// Connect loads .env (real environment wins), builds the DSN from the
// DB_* variables and opens the pool. Missing DB_PASSWORD is fatal so a
// misconfigured deployment dies at startup instead of on first query.
func Connect() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("warning: could not load .env file:", err)
	}

	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	user := envOr("DB_USER", "medgate")
	name := envOr("DB_NAME", "medgate_db")
	sslMode := envOr("DB_SSLMODE", "disable")

	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		log.Fatal("FATAL: DB_PASSWORD environment variable is not set")
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode)

	db, err := sqlx.Connect("pgx", connStr)
	if err != nil {
		log.Fatalf("FATAL: unable to connect to database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	DB = db
	log.Println("connected to database", name, "at", host)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
