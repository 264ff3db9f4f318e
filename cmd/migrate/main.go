package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	database "github.com/arvik-health/medgate/internal"
)

// Applies db/migrations/*.sql in lexical order, tracking versions in
// schema_migrations. Files use goose-style markers: the "-- +goose Up"
// section applies, the "-- +goose Down" section reverts. With -down the
// latest applied migration is rolled back instead.

func main() {
	down := flag.Bool("down", false, "revert the most recently applied migration")
	flag.Parse()

	database.Connect()
	ensureMigrationsTable()

	migDir := filepath.Join("db", "migrations")
	files := collectSQLFiles(migDir)
	if len(files) == 0 {
		log.Println("no migration files found, skipping")
		return
	}

	if *down {
		revertLatest(files)
		return
	}

	applied := getAppliedMigrations()
	for _, f := range files {
		name := filepath.Base(f)
		if applied[name] {
			continue
		}
		upSQL, _, err := splitSections(f)
		if err != nil {
			log.Fatalf("failed reading %s: %v", name, err)
		}
		if strings.TrimSpace(upSQL) == "" {
			log.Printf("skipping empty migration: %s", name)
			markApplied(name)
			continue
		}
		log.Printf("applying migration: %s", name)
		if err := execStatements(upSQL); err != nil {
			log.Fatalf("migration %s failed: %v", name, err)
		}
		markApplied(name)
	}
	log.Println("migrations applied")
}

func revertLatest(files []string) {
	var latest string
	err := database.DB.Get(&latest,
		`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`)
	if err != nil {
		log.Fatalf("no applied migrations to revert: %v", err)
	}

	var path string
	for _, f := range files {
		if filepath.Base(f) == latest {
			path = f
			break
		}
	}
	if path == "" {
		log.Fatalf("migration file for %s not found under db/migrations", latest)
	}

	_, downSQL, err := splitSections(path)
	if err != nil {
		log.Fatalf("failed reading %s: %v", latest, err)
	}
	if strings.TrimSpace(downSQL) == "" {
		log.Fatalf("migration %s has no Down section", latest)
	}
	log.Printf("reverting migration: %s", latest)
	if err := execStatements(downSQL); err != nil {
		log.Fatalf("revert %s failed: %v", latest, err)
	}
	if _, err := database.DB.Exec(`DELETE FROM schema_migrations WHERE version=$1`, latest); err != nil {
		log.Fatalf("failed clearing %s from schema_migrations: %v", latest, err)
	}
	log.Println("revert complete")
}

func ensureMigrationsTable() {
	_, err := database.DB.Exec(`
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version TEXT PRIMARY KEY,
            applied_at timestamptz NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		log.Fatalf("unable to ensure schema_migrations table: %v", err)
	}
}

func getAppliedMigrations() map[string]bool {
	rows, err := database.DB.Queryx("SELECT version FROM schema_migrations")
	if err != nil {
		log.Fatalf("unable to query schema_migrations: %v", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			log.Fatalf("scan error: %v", err)
		}
		applied[v] = true
	}
	return applied
}

func markApplied(version string) {
	_, err := database.DB.Exec(
		"INSERT INTO schema_migrations(version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		version, time.Now())
	if err != nil {
		log.Fatalf("failed marking migration applied %s: %v", version, err)
	}
}

func collectSQLFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// splitSections returns the Up and Down SQL of a goose-marked file. A file
// without markers is treated as Up-only.
func splitSections(path string) (up, down string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	content := string(b)
	lower := strings.ToLower(content)

	upIdx := strings.Index(lower, "-- +goose up")
	if upIdx == -1 {
		return content, "", nil
	}
	rest := content[upIdx:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}
	if downIdx := strings.Index(strings.ToLower(rest), "-- +goose down"); downIdx != -1 {
		down = rest[downIdx:]
		if nl := strings.Index(down, "\n"); nl != -1 {
			down = down[nl+1:]
		} else {
			down = ""
		}
		rest = rest[:downIdx]
	}
	return rest, down, nil
}

// execStatements splits SQL by ';' and executes sequentially, ignoring
// benign "already exists" errors so reruns stay idempotent.
func execStatements(sql string) error {
	stmts := strings.Split(sql, ";")
	for _, raw := range stmts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := database.DB.Exec(stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate") {
				log.Printf("ignoring idempotent error for statement: %s -> %v", short(stmt), err)
				continue
			}
			return fmt.Errorf("statement failed: %v", err)
		}
	}
	return nil
}

func short(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
