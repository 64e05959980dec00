package store

import (
	"context"
	"errors"
	"time"

	"solio/internal/donations"
	"solio/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const campaignColumns = `
	id, creator_id, creator_wallet, title,
	goal_sol::text, raised_sol::text,
	end_at, status, payout_status, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var goal, raised string
	err := row.Scan(
		&c.ID, &c.CreatorID, &c.CreatorWallet, &c.Title,
		&goal, &raised,
		&c.EndAt, &c.Status, &c.PayoutStatus, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.GoalSOL, err = parseAmount(goal); err != nil {
		return nil, err
	}
	if c.RaisedSOL, err = parseAmount(raised); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *Store) GetRewardTier(ctx context.Context, id string) (*models.RewardTier, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, campaign_id, title, min_amount_sol::text, max_claims, claimed_count
		FROM reward_tiers WHERE id=$1
	`, id)
	t, err := scanRewardTier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func scanRewardTier(row pgx.Row) (*models.RewardTier, error) {
	var t models.RewardTier
	var min string
	err := row.Scan(&t.ID, &t.CampaignID, &t.Title, &min, &t.MaxClaims, &t.ClaimedCount)
	if err != nil {
		return nil, err
	}
	if t.MinAmountSOL, err = parseAmount(min); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ContributionBySignature(ctx context.Context, signature string) (*models.Contribution, error) {
	row := s.Pool.QueryRow(ctx,
		contributionSelect+` WHERE tx_signature=$1`, signature)
	c, err := scanContribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

const contributionSelect = `
	SELECT id, campaign_id, user_id, reward_tier_id,
		amount_sol::text, platform_fee::text,
		message, donor_email, tx_signature, donor_wallet, status, created_at
	FROM contributions`

func scanContribution(row pgx.Row) (*models.Contribution, error) {
	var c models.Contribution
	var amount, fee string
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.UserID, &c.RewardTierID,
		&amount, &fee,
		&c.Message, &c.DonorEmail, &c.TxSignature, &c.DonorWallet, &c.Status, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.AmountSOL, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if c.PlatformFee, err = parseAmount(fee); err != nil {
		return nil, err
	}
	return &c, nil
}

// RecordContribution persists a verified contribution and its cascading
// side effects in one transaction. The campaign row lock serializes
// concurrent donations to the same campaign (the running total and
// milestone flags depend on it); the tier row lock serializes claims
// against max_claims. Duplicate signatures are rejected by the unique
// index, not an application-level lookup, which closes the race between
// two parallel submissions of the same transaction.
func (s *Store) RecordContribution(ctx context.Context, c *models.Contribution) (decimal.Decimal, []models.Milestone, error) {
	var raised decimal.Decimal
	var reached []models.Milestone

	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var status models.CampaignStatus
		var endAt time.Time
		err := tx.QueryRow(ctx, `
			SELECT status, end_at FROM campaigns WHERE id=$1 FOR UPDATE
		`, c.CampaignID).Scan(&status, &endAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return donations.ErrCampaignNotFound
		}
		if err != nil {
			return err
		}
		if status != models.CampaignActive || !c.CreatedAt.Before(endAt) {
			return donations.ErrCampaignClosed
		}

		if c.RewardTierID != nil {
			var maxClaims *int32
			var claimed int32
			err := tx.QueryRow(ctx, `
				SELECT max_claims, claimed_count FROM reward_tiers
				WHERE id=$1 AND campaign_id=$2 FOR UPDATE
			`, *c.RewardTierID, c.CampaignID).Scan(&maxClaims, &claimed)
			if errors.Is(err, pgx.ErrNoRows) {
				return donations.ErrInvalidRewardTier
			}
			if err != nil {
				return err
			}
			if maxClaims != nil && claimed >= *maxClaims {
				return donations.ErrRewardTierSoldOut
			}
			if _, err := tx.Exec(ctx, `
				UPDATE reward_tiers SET claimed_count = claimed_count + 1 WHERE id=$1
			`, *c.RewardTierID); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contributions (
				id, campaign_id, user_id, reward_tier_id,
				amount_sol, platform_fee, message, donor_email,
				tx_signature, donor_wallet, status, created_at
			) VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8,$9,$10,$11,$12)
		`,
			c.ID, c.CampaignID, c.UserID, c.RewardTierID,
			c.AmountSOL.String(), c.PlatformFee.String(), c.Message, c.DonorEmail,
			c.TxSignature, c.DonorWallet, c.Status, c.CreatedAt,
		)
		if isUniqueViolation(err) {
			return donations.ErrDuplicateTransaction
		}
		if err != nil {
			return err
		}

		var raisedText string
		if err := tx.QueryRow(ctx, `
			UPDATE campaigns
			SET raised_sol = raised_sol + $2::numeric, updated_at = now()
			WHERE id=$1
			RETURNING raised_sol::text
		`, c.CampaignID, c.AmountSOL.String()).Scan(&raisedText); err != nil {
			return err
		}
		if raised, err = parseAmount(raisedText); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			UPDATE milestones
			SET reached = true, reached_at = $3
			WHERE campaign_id=$1 AND NOT reached AND amount_sol <= $2::numeric
			RETURNING id, campaign_id, title, amount_sol::text, sort_order
		`, c.CampaignID, raised.String(), c.CreatedAt)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m models.Milestone
			var amount string
			if err := rows.Scan(&m.ID, &m.CampaignID, &m.Title, &amount, &m.SortOrder); err != nil {
				return err
			}
			if m.AmountSOL, err = parseAmount(amount); err != nil {
				return err
			}
			m.Reached = true
			at := c.CreatedAt
			m.ReachedAt = &at
			reached = append(reached, m)
		}
		return rows.Err()
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return raised, reached, nil
}

func (s *Store) ListCampaignContributions(ctx context.Context, campaignID string, limit, offset int) ([]models.Contribution, int64, error) {
	var total int64
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM contributions WHERE campaign_id=$1 AND status='confirmed'
	`, campaignID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.Pool.Query(ctx,
		contributionSelect+`
		WHERE campaign_id=$1 AND status='confirmed'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (s *Store) DonationStats(ctx context.Context) (*donations.Stats, error) {
	var stats donations.Stats
	var raised string
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(amount_sol), 0)::text
		FROM contributions WHERE status='confirmed'
	`).Scan(&stats.TotalDonations, &raised)
	if err != nil {
		return nil, err
	}
	if stats.TotalRaisedSOL, err = parseAmount(raised); err != nil {
		return nil, err
	}

	err = s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM campaigns WHERE status IN ('active','ended')
	`).Scan(&stats.TotalCampaigns)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
