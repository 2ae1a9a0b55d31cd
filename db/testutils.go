package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	db        *sqlx.DB
	getDbOnce sync.Once
)

// GetDb connects to POSTGRES_URL once per test binary and makes sure the schema exists.
func GetDb(t *testing.T) *sqlx.DB {
	getDbOnce.Do(func() {
		var err error
		db, err = sqlx.Open("postgres", os.Getenv("POSTGRES_URL"))
		require.NoError(t, err)

		err = InitializeDatabaseSchema(db)
		require.NoError(t, err)
	})
	return db
}

func StartPostgresContainer() (testcontainers.Container, string) {
	ctx := context.Background()
	dbName := "db"
	dbUser := "user"
	dbPassword := "password"

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:15.2-alpine"),
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		panic(err)
	}

	return postgresContainer, connStr
}

// RunWithPostgres is meant to be called from TestMain of packages that need a real database.
// It starts a container unless POSTGRES_URL already points to one.
func RunWithPostgres(m *testing.M) int {
	if os.Getenv("POSTGRES_URL") != "" {
		return m.Run()
	}

	container, url := StartPostgresContainer()
	defer func() {
		_ = container.Terminate(context.Background())
	}()

	if err := os.Setenv("POSTGRES_URL", url); err != nil {
		panic(err)
	}

	return m.Run()
}
