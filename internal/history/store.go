// Package history keeps an operator-facing SQLite log of dispatch outcomes.
// The dispatcher never reads it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"yogabot/internal/bus"
)

const recordTimeout = 5 * time.Second

// Entry is one recorded dispatch.
type Entry struct {
	ID            int64
	Channel       string
	ChatID        string
	SenderID      string
	CorrelationID string
	Intent        string
	Tag           string
	ErrorKind     string
	Error         string
	Latency       time.Duration
	ReplyLen      int
	Recognized    bool
	CreatedAt     time.Time
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches
		 (channel, chat_id, sender_id, correlation_id, intent, tag, error_kind, error, latency_ms, reply_len, recognized, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Channel, e.ChatID, e.SenderID, e.CorrelationID, e.Intent, e.Tag, e.ErrorKind, e.Error,
		e.Latency.Milliseconds(), e.ReplyLen, e.Recognized, e.CreatedAt.UnixMilli(),
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, chat_id, sender_id, correlation_id, intent, tag, error_kind, error, latency_ms, reply_len, recognized, created_at
		 FROM dispatches ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			latencyMs int64
			createdMs int64
		)
		if err := rows.Scan(&e.ID, &e.Channel, &e.ChatID, &e.SenderID, &e.CorrelationID, &e.Intent, &e.Tag,
			&e.ErrorKind, &e.Error, &latencyMs, &e.ReplyLen, &e.Recognized, &createdMs); err != nil {
			return nil, err
		}
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries older than retention and reports how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatches WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Backup writes a consistent copy of the database to dest, which must not
// already exist.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup target %s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// Subscribe records every dispatched and failed message event and returns
// a function that detaches the store.
func (s *Store) Subscribe(events *bus.EventBus) func() {
	handler := func(e bus.Event) {
		entry := Entry{
			Channel:       e.Channel,
			ChatID:        e.ChatID,
			SenderID:      e.SenderID,
			CorrelationID: e.CorrelationID,
			Intent:        e.Intent,
			Tag:           e.Tag,
			ErrorKind:     e.ErrorKind,
			Latency:       e.Latency,
			ReplyLen:      e.ReplyLen,
			Recognized:    e.Recognized,
			CreatedAt:     e.Timestamp,
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.Record(ctx, entry); err != nil {
			s.logger.Warn("history record failed", "err", err)
		}
	}
	okID := events.On(bus.EventMessageDispatched, handler)
	failID := events.On(bus.EventMessageFailed, handler)
	return func() {
		events.Off(bus.EventMessageDispatched, okID)
		events.Off(bus.EventMessageFailed, failID)
	}
}
