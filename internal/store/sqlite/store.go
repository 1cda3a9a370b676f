// Package sqlite provides the SQLite-backed durable store, satisfying
// session.Store and worker.Store.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"parbuild/internal/logging"
	"parbuild/internal/session"
	"parbuild/internal/worker"
)

// Store persists session and worker records in a single SQLite database.
type Store struct {
	db     *gorm.DB
	logger *logging.Logger
}

var (
	_ session.Store = (*Store)(nil)
	_ worker.Store  = (*Store)(nil)
)

// gormLogger routes GORM's internal logging through the structured logger.
type gormLogger struct {
	level logger.LogLevel
	log   *logging.Logger
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level, log: l.log}
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("query failed", "error", err, "duration", elapsed, "sql", sql, "rows", rows)
	case elapsed > 200*time.Millisecond:
		l.log.Warn("slow query", "duration", elapsed, "sql", sql, "rows", rows)
	case l.level >= logger.Info:
		l.log.Debug("query", "duration", elapsed, "sql", sql, "rows", rows)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.logger = log }
}

// Open creates the database file (and its directory) if needed, applies
// the schema, and returns a ready Store. WAL mode keeps readers from
// blocking the writer.
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  &gormLogger{level: logger.Silent, log: s.logger},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&sessionModel{}, &workerModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)

	s.db = db
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSession inserts or replaces the session record.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	model, err := sessionToModel(sess)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(model)
		if result.Error != nil {
			return fmt.Errorf("save session %s: %w", sess.ID, result.Error)
		}
		return nil
	}, 3)
}

// DeleteSession removes the session record. Deleting an absent id is a
// no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return withRetry(func() error {
		result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionModel{})
		if result.Error != nil {
			return fmt.Errorf("delete session %s: %w", id, result.Error)
		}
		return nil
	}, 3)
}

// ListSessions returns every stored session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]*session.Session, error) {
	var models []sessionModel
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*session.Session, 0, len(models))
	for i := range models {
		sess, err := modelToSession(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// SaveWorker inserts or replaces the worker record.
func (s *Store) SaveWorker(ctx context.Context, w *worker.Worker) error {
	model, err := workerToModel(w)
	if err != nil {
		return err
	}
	return withRetry(func() error {
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(model)
		if result.Error != nil {
			return fmt.Errorf("save worker %s: %w", w.ID, result.Error)
		}
		return nil
	}, 3)
}

// DeleteWorker removes the worker record. Deleting an absent id is a
// no-op.
func (s *Store) DeleteWorker(ctx context.Context, id string) error {
	return withRetry(func() error {
		result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&workerModel{})
		if result.Error != nil {
			return fmt.Errorf("delete worker %s: %w", id, result.Error)
		}
		return nil
	}, 3)
}

// ListWorkers returns every stored worker, oldest first.
func (s *Store) ListWorkers(ctx context.Context) ([]*worker.Worker, error) {
	var models []workerModel
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Order("registered_at ASC").Find(&models).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	out := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, err := modelToWorker(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// withRetry retries busy and locked SQLite errors with linear backoff.
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
