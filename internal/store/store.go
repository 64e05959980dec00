package store

import (
	"context"
	"errors"
	"time"

	"solio/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Amount columns are selected with ::text and parsed here so NUMERIC(18,9)
// values round-trip exactly.
func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// --- wallet challenges ---

// ReplaceChallenge inserts a fresh challenge for the wallet after removing
// any earlier ones, so at most one challenge per wallet is outstanding.
func (s *Store) ReplaceChallenge(ctx context.Context, ch *models.Challenge) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM wallet_challenges WHERE wallet_address=$1`, ch.WalletAddress); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO wallet_challenges (id, wallet_address, token, created_at, expires_at, consumed)
			VALUES ($1,$2,$3,$4,$5,false)
		`, ch.ID, ch.WalletAddress, ch.Token, ch.CreatedAt, ch.ExpiresAt)
		return err
	})
}

func (s *Store) GetChallenge(ctx context.Context, wallet, token string) (*models.Challenge, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, wallet_address, token, created_at, expires_at, consumed
		FROM wallet_challenges
		WHERE wallet_address=$1 AND token=$2
	`, wallet, token)

	var ch models.Challenge
	err := row.Scan(&ch.ID, &ch.WalletAddress, &ch.Token, &ch.CreatedAt, &ch.ExpiresAt, &ch.Consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ConsumeChallenge flips the consumed flag and reports whether this call
// won; the guarded UPDATE is what makes challenge consumption single-use
// under concurrent verification attempts.
func (s *Store) ConsumeChallenge(ctx context.Context, id string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE wallet_challenges SET consumed=true WHERE id=$1 AND NOT consumed
	`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx,
		`DELETE FROM wallet_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// --- notifications ---

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, campaign_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.CampaignID, n.CreatedAt)
	return err
}
