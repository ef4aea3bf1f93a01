package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrRepositoryError = errors.New("could not fetch data from repository")

type ConnectorFunc func() (*gorm.DB, zerolog.Logger, error)

// InMemoryDSN returns a DSN for a named, shared cache, in-memory SQLite
// database. Connections opened with the same name see the same tables.
func InMemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// NewSQLiteConnector opens the database once and hands out the same handle
// to every repository that connects through it.
func NewSQLiteConnector(log zerolog.Logger, dsn string) ConnectorFunc {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	var once sync.Once
	var db *gorm.DB
	var err error

	return func() (*gorm.DB, zerolog.Logger, error) {
		once.Do(func() {
			db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
				Logger:          logger.Default.LogMode(logger.Silent),
				CreateBatchSize: 1000,
			})

			if err == nil {
				db.Exec("PRAGMA foreign_keys = ON")
				sqldb, _ := db.DB()
				sqldb.SetMaxOpenConns(1)
			}
		})

		return db, log, err
	}
}

func NewPostgreSQLConnector(log zerolog.Logger) ConnectorFunc {
	dbHost := env.GetVariableOrDefault(log, "POSTGRES_HOST", "")
	dbPort := env.GetVariableOrDefault(log, "POSTGRES_PORT", "5432")
	username := env.GetVariableOrDefault(log, "POSTGRES_USER", "")
	dbName := env.GetVariableOrDefault(log, "POSTGRES_DBNAME", "aquasmart")
	password := env.GetVariableOrDefault(log, "POSTGRES_PASSWORD", "")
	sslMode := env.GetVariableOrDefault(log, "POSTGRES_SSLMODE", "disable")

	dbURI := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s password=%s", dbHost, dbPort, username, dbName, sslMode, password)

	var once sync.Once
	var db *gorm.DB
	var err error

	return func() (*gorm.DB, zerolog.Logger, error) {
		sublogger := log.With().Str("host", dbHost).Str("database", dbName).Logger()

		once.Do(func() {
			const maxAttempts = 10

			for attempt := 1; attempt <= maxAttempts; attempt++ {
				sublogger.Info().Msg("connecting to database host")

				db, err = gorm.Open(postgres.Open(dbURI), &gorm.Config{
					Logger: logger.New(
						&sublogger,
						logger.Config{
							SlowThreshold:             time.Second,
							LogLevel:                  logger.Warn,
							IgnoreRecordNotFoundError: true,
							Colorful:                  false,
						},
					),
				})
				if err == nil {
					return
				}

				sublogger.Error().Err(err).Int("attempt", attempt).Msg("failed to connect to database")
				time.Sleep(3 * time.Second)
			}
		})

		return db, sublogger, err
	}
}
