// MeterDB is append-only persistence for incremental energy readings plus
// the device metadata they hang off. The dashboard services only read from
// this database; the collector is the sole writer.
package meterdb

import (
	"context"
	"database/sql"
	"embed"
	"sync"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const (
	connectAttempts = 3
	connectDelay    = 5 * time.Second
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store owns the sqlite connection shared by the polling cycle.
type Store struct {
	path string
	log  zerolog.Logger

	// reconnectMu keeps reconnect attempts mutually exclusive so a flaky
	// cycle cannot open a storm of connections.
	reconnectMu sync.Mutex
	db          *sql.DB
}

func New(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "meterdb").Logger(),
	}
}

// Connect opens the database and applies migrations, retrying a bounded
// number of times. At process startup a returned error is fatal to the
// caller; mid-run the caller skips the cycle instead.
func (s *Store) Connect(ctx context.Context) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Store) connectLocked(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(connectDelay):
			}
		}

		db, err := sql.Open("sqlite", s.path)
		if err != nil {
			lastErr = err
			s.log.Error().Int("attempt", attempt).Err(err).Msg("Could not open database")
			continue
		}
		// sqlite is a single-writer store; one connection keeps writes
		// serialized without lock contention errors.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			lastErr = err
			db.Close()
			s.log.Error().Int("attempt", attempt).Err(err).Msg("Database ping failed")
			continue
		}

		dbmigrator.SetDatabaseType(dbmigrator.SQLite)
		<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

		s.db = db
		s.log.Info().Str("path", s.path).Msg("Connected to meter database")
		return nil
	}
	return lastErr
}

// EnsureConnected verifies the connection at the start of a cycle and
// reconnects with bounded retries if it went away. Failure means the cycle
// is skipped, not the process.
func (s *Store) EnsureConnected(ctx context.Context) error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err == nil {
			return nil
		}
		s.log.Warn().Msg("Database connection lost, reconnecting")
		s.db.Close()
		s.db = nil
	}
	return s.connectLocked(ctx)
}

func (s *Store) Close() error {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
