package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(&config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "pm"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=pm sslmode=disable", dsn)

	dsn = DSN(&config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Name: "pm", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS admins`).WillReturnError(errors.New("permission denied"))
	err = Migrate(context.Background(), db)
	assert.ErrorContains(t, err, "migrate stmt 0")
}

// TestMigrateAgainstPostgres runs only when TEST_DB_DSN points at a
// disposable database.
func TestMigrateAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are idempotent")
}
