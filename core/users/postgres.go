package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/secretbot/core/logger"
)

const (
	insertUserQuery = `INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, name, words, save`
	selectUserQuery = `SELECT id, name, words, save FROM users WHERE id = $1`
	commitUserQuery = `UPDATE users SET words = $2, save = $3 WHERE id = $1`
	countUsersQuery = `SELECT COUNT(*) FROM users`
)

// PostgresStore keeps user records in the users table.
// Concurrent commits for the same id are last-writer-wins.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureUser inserts a default row unless one exists and returns the stored row.
func (s *PostgresStore) EnsureUser(ctx context.Context, id, name string) (Record, error) {
	var rec Record
	err := s.db.QueryRowxContext(ctx, insertUserQuery, id, name).StructScan(&rec)
	switch {
	case err == nil:
		logEnsured(ctx, rec, true, nil)
		return rec, nil
	case errors.Is(err, sql.ErrNoRows):
		// conflict: the row already exists
	default:
		return Record{}, fmt.Errorf("db error: insert user: %w", err)
	}

	rec, err = s.Find(ctx, id)
	if err != nil {
		return Record{}, err
	}
	logEnsured(ctx, rec, false, func() (int, error) { return s.Count(ctx) })
	return rec, nil
}

// Find returns the record for id or ErrNotFound.
func (s *PostgresStore) Find(ctx context.Context, id string) (Record, error) {
	var rec Record
	if err := s.db.GetContext(ctx, &rec, selectUserQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("db error: select user: %w", err)
	}
	return rec, nil
}

// Commit writes the secret text and armed flag; the name column is left untouched.
func (s *PostgresStore) Commit(ctx context.Context, rec Record) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, commitUserQuery, rec.ID, rec.SecretText, rec.Armed)
	if err != nil {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelError, "user.commit",
			slog.String("status", "fail"),
			slog.String("user_id", rec.ID),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("db error: commit user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: commit user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	logger.LogEvent(ctx, logger.SVCUsers, slog.LevelDebug, "user.commit",
		slog.String("status", "ok"),
		slog.String("user_id", rec.ID),
		slog.Bool("armed", rec.Armed),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Count returns the number of stored users.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countUsersQuery); err != nil {
		return 0, fmt.Errorf("db error: count users: %w", err)
	}
	return n, nil
}
