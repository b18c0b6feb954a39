package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	selectPayloadSQL = `SELECT payload FROM cart_sessions WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`
	upsertPayloadSQL = `INSERT INTO cart_sessions (key, payload, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at, updated_at = now()`
	purgeExpiredSQL = `DELETE FROM cart_sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PGStore keeps cart state as jsonb rows in the cart_sessions table.
type PGStore struct {
	db  querier
	ttl time.Duration
	now func() time.Time
}

// NewPGStore constructs a Postgres backed store. db is usually a *pgxpool.Pool.
func NewPGStore(db querier, ttl time.Duration) *PGStore {
	return &PGStore{db: db, ttl: ttl, now: time.Now}
}

// Get decodes the payload stored under key into dst. Expired rows are treated as missing.
func (s *PGStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("session: database not configured")
	}
	defer observe("postgres", "get", time.Now())
	var payload []byte
	err := s.db.QueryRow(ctx, selectPayloadSQL, key, pgtype.Timestamptz{Time: s.clock(), Valid: true}).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Put upserts value under key and pushes its expiry forward.
func (s *PGStore) Put(ctx context.Context, key string, value any) error {
	if s == nil || s.db == nil {
		return errors.New("session: database not configured")
	}
	defer observe("postgres", "put", time.Now())
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expires := pgtype.Timestamptz{}
	if s.ttl > 0 {
		expires = pgtype.Timestamptz{Time: s.clock().Add(s.ttl), Valid: true}
	}
	_, err = s.db.Exec(ctx, upsertPayloadSQL, key, payload, expires)
	return err
}

// PurgeExpired deletes rows whose expiry has passed and returns how many were removed.
func (s *PGStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("session: database not configured")
	}
	tag, err := s.db.Exec(ctx, purgeExpiredSQL, pgtype.Timestamptz{Time: s.clock(), Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection when the underlying handle supports it.
func (s *PGStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("session: database not configured")
	}
	if p, ok := s.db.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *PGStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
