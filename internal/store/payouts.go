package store

import (
	"context"
	"time"

	"solio/internal/models"
	"solio/internal/payouts"

	"github.com/jackc/pgx/v5"
)

// DuePayoutCampaigns selects campaigns whose funding window has closed and
// whose payout is still pending. Ended campaigns stay eligible: a skipped or
// released settlement must be picked up by a later sweep.
func (s *Store) DuePayoutCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status IN ('active','ended') AND end_at < $1 AND payout_status='pending' AND raised_sol > 0
		ORDER BY end_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// MarkCampaignEnded closes the funding window. Idempotent: a campaign
// already ended by a parallel sweeper matches zero rows.
func (s *Store) MarkCampaignEnded(ctx context.Context, id string, now time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE campaigns SET status='ended', updated_at=now()
		WHERE id=$1 AND status='active' AND end_at < $2
	`, id, now)
	return err
}

// ClaimCampaignPayout performs the atomic pending->processing transition.
// Only one caller can win it, which is what keeps a second sweep process
// from double-paying a campaign.
func (s *Store) ClaimCampaignPayout(ctx context.Context, id string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE campaigns SET payout_status='processing', updated_at=now()
		WHERE id=$1 AND payout_status='pending'
	`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ReleaseCampaignPayout undoes a claim whose payout row was never created,
// returning the campaign to the sweep's pending pool.
func (s *Store) ReleaseCampaignPayout(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE campaigns SET payout_status='pending', updated_at=now()
		WHERE id=$1 AND payout_status='processing'
	`, id)
	return err
}

func (s *Store) ResetPayoutStatus(ctx context.Context, id string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE campaigns SET payout_status='pending', updated_at=now()
		WHERE id=$1 AND payout_status='failed'
	`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) CreatePayout(ctx context.Context, p *models.Payout) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payouts (
			id, campaign_id, total_raised, platform_fee, net_amount,
			recipient_wallet, status, created_at
		) VALUES ($1,$2,$3::numeric,$4::numeric,$5::numeric,$6,$7,$8)
	`,
		p.ID, p.CampaignID,
		p.TotalRaised.String(), p.PlatformFee.String(), p.NetAmount.String(),
		p.RecipientWallet, p.Status, p.CreatedAt,
	)
	return err
}

// CompletePayout records a successful transfer on the payout row and the
// campaign in one transaction so the two never disagree.
func (s *Store) CompletePayout(ctx context.Context, payoutID, signature string, at time.Time) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var campaignID string
		err := tx.QueryRow(ctx, `
			UPDATE payouts SET status='completed', tx_signature=$2, completed_at=$3
			WHERE id=$1
			RETURNING campaign_id
		`, payoutID, signature, at).Scan(&campaignID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE campaigns SET payout_status='completed', updated_at=now() WHERE id=$1
		`, campaignID)
		return err
	})
}

func (s *Store) FailPayout(ctx context.Context, payoutID, message string) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var campaignID string
		err := tx.QueryRow(ctx, `
			UPDATE payouts SET status='failed', error_message=$2
			WHERE id=$1
			RETURNING campaign_id
		`, payoutID, message).Scan(&campaignID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE campaigns SET payout_status='failed', updated_at=now() WHERE id=$1
		`, campaignID)
		return err
	})
}

// UnconfirmedPayouts lists completed payouts whose transfer has not been
// observed as finalized yet; the worker watches these.
func (s *Store) UnconfirmedPayouts(ctx context.Context, limit int) ([]models.Payout, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, campaign_id, total_raised::text, platform_fee::text, net_amount::text,
			recipient_wallet, tx_signature, status, error_message,
			created_at, completed_at, confirmed_at
		FROM payouts
		WHERE status='completed' AND confirmed_at IS NULL AND tx_signature IS NOT NULL
		ORDER BY completed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		var p models.Payout
		var total, fee, net string
		if err := rows.Scan(
			&p.ID, &p.CampaignID, &total, &fee, &net,
			&p.RecipientWallet, &p.TxSignature, &p.Status, &p.ErrorMessage,
			&p.CreatedAt, &p.CompletedAt, &p.ConfirmedAt,
		); err != nil {
			return nil, err
		}
		if p.TotalRaised, err = parseAmount(total); err != nil {
			return nil, err
		}
		if p.PlatformFee, err = parseAmount(fee); err != nil {
			return nil, err
		}
		if p.NetAmount, err = parseAmount(net); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ConfirmPayout(ctx context.Context, id string, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payouts SET confirmed_at=$2 WHERE id=$1 AND confirmed_at IS NULL
	`, id, at)
	return err
}

func (s *Store) PayoutSummary(ctx context.Context) (*payouts.Summary, error) {
	var sum payouts.Summary
	var paidOut, fees string
	err := s.Pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status='completed'),
			count(*) FILTER (WHERE status IN ('pending','processing')),
			count(*) FILTER (WHERE status='failed'),
			COALESCE(sum(net_amount) FILTER (WHERE status='completed'), 0)::text,
			COALESCE(sum(platform_fee) FILTER (WHERE status='completed'), 0)::text
		FROM payouts
	`).Scan(
		&sum.TotalPayouts, &sum.CompletedPayouts, &sum.PendingPayouts, &sum.FailedPayouts,
		&paidOut, &fees,
	)
	if err != nil {
		return nil, err
	}
	if sum.TotalPaidOutSOL, err = parseAmount(paidOut); err != nil {
		return nil, err
	}
	if sum.TotalFeesSOL, err = parseAmount(fees); err != nil {
		return nil, err
	}
	return &sum, nil
}
