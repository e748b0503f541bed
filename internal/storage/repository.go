package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createNotificationsSQL = `CREATE TABLE IF NOT EXISTS notifications (
        id            BIGSERIAL PRIMARY KEY,
        kind          TEXT        NOT NULL,
        currency_pair TEXT        NOT NULL,
        rate          NUMERIC     NOT NULL,
        threshold     NUMERIC     NOT NULL,
        sample_ts     TIMESTAMPTZ NOT NULL,
        recipients    TEXT[]      NOT NULL DEFAULT '{}',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createNotificationsIndexSQL = `CREATE INDEX IF NOT EXISTS notifications_created_at_idx
    ON notifications (created_at DESC);`

	insertNotificationSQL = `INSERT INTO notifications (
        kind,
        currency_pair,
        rate,
        threshold,
        sample_ts,
        recipients
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentNotificationsSQL = `SELECT
        id,
        kind,
        currency_pair,
        rate::text,
        threshold::text,
        sample_ts,
        recipients,
        created_at
    FROM notifications
    ORDER BY created_at DESC
    LIMIT $1;`

	countNotificationsSQL = `SELECT COUNT(*) FROM notifications;`

	deleteNotificationsBeforeSQL = `DELETE FROM notifications WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NotificationStore defines the notification audit log.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists the notification audit log in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// EnsureSchema creates the notifications table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createNotificationsSQL, createNotificationsIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also ends when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertNotification records a delivered notification.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	recipients := rec.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		rec.Kind,
		rec.CurrencyPair,
		rec.Rate.String(),
		rec.Threshold.String(),
		rec.SampleTS,
		recipients,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", scanErr)
	}
	return rec, nil
}

// ListRecentNotifications lists the newest notifications first.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountNotifications counts stored notifications.
func (s *Store) CountNotifications(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countNotificationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count notifications: %w", scanErr)
	}
	return count, nil
}

// DeleteNotificationsBefore prunes the audit log.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteNotificationsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete notifications before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(rows pgx.Rows) (NotificationRecord, error) {
	var (
		rec          NotificationRecord
		rateStr      string
		thresholdStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.CurrencyPair,
		&rateStr,
		&thresholdStr,
		&rec.SampleTS,
		&rec.Recipients,
		&rec.CreatedAt,
	); err != nil {
		return NotificationRecord{}, err
	}

	var convErr error
	rec.Rate, convErr = decimal.NewFromString(rateStr)
	if convErr != nil {
		return NotificationRecord{}, fmt.Errorf("parse rate: %w", convErr)
	}
	rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return NotificationRecord{}, fmt.Errorf("parse threshold: %w", convErr)
	}
	return rec, nil
}
