package database

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pressly/goose/v3"

	"github.com/snusnumrick/robie/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// gooseLogger routes goose output through the application logger.
type gooseLogger struct {
	log logger.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func RunMigrations(db *sql.DB, log logger.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: log})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
