package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// RedactDSN returns a copy of the DSN with password replaced by **** for logging.
func RedactDSN(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// extractDBName returns the database name from URL path ("/accounts" -> "accounts").
func extractDBName(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
}

func isDatabaseDoesNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database") && strings.Contains(msg, "does not exist")
}

// Open establishes a connection to PostgreSQL and configures the connection pool.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	dbName := extractDBName(u)
	host := u.Hostname()
	port := u.Port()
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}

	log.Info().
		Str("host", host).
		Str("port", port).
		Str("db", dbName).
		Str("dsn", RedactDSN(databaseURL)).
		Msg("DB connect target")

	if dbName != "" {
		precheck(ctx, u, dbName)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		if isDatabaseDoesNotExist(err) {
			return nil, fmt.Errorf("database %q not found on host=%s port=%s: %w", dbName, host, port, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// precheck asks the maintenance database whether dbName exists so a wrong
// instance shows up in the log before the real ping fails.
func precheck(ctx context.Context, u *url.URL, dbName string) {
	maintenanceURL := *u
	maintenanceURL.Path = "/postgres"
	maintenanceURL.RawPath = ""

	maintDB, err := sql.Open("postgres", maintenanceURL.String())
	if err != nil {
		log.Warn().Err(err).Msg("DB precheck: could not open maintenance connection")
		return
	}
	defer maintDB.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var found string
	err = maintDB.QueryRowContext(checkCtx,
		"SELECT datname FROM pg_database WHERE datname = $1", dbName,
	).Scan(&found)
	switch {
	case err == nil:
		log.Debug().Str("db", found).Msg("DB precheck: database exists")
	case errors.Is(err, sql.ErrNoRows):
		log.Warn().Str("db", dbName).Msg("DB precheck: database not found on this instance")
	default:
		log.Warn().Err(err).Msg("DB precheck: could not query pg_database")
	}
}
