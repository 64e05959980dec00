package payouts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solio/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrPayoutNotRetryable = errors.New("payout is not in failed status")
	ErrNoPayoutWallet     = errors.New("creator has no wallet address set")
	ErrDustAmount         = errors.New("net amount below minimum payout")
	ErrAlreadyClaimed     = errors.New("payout already claimed by another worker")
	ErrTransferFailed     = errors.New("payout transfer failed")
)

// Ledger moves platform funds on chain. Submission returns the ledger
// signature without waiting for finality.
type Ledger interface {
	SendTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// Store is the persistence the engine needs. ClaimCampaignPayout must be an
// atomic pending->processing transition (it is the mutual exclusion between
// concurrent sweepers); CompletePayout and FailPayout update the payout row
// and the campaign's payout status in one transaction.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	DuePayoutCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	MarkCampaignEnded(ctx context.Context, id string, now time.Time) error
	ClaimCampaignPayout(ctx context.Context, id string) (bool, error)
	ReleaseCampaignPayout(ctx context.Context, id string) error
	ResetPayoutStatus(ctx context.Context, id string) (bool, error)
	CreatePayout(ctx context.Context, p *models.Payout) error
	CompletePayout(ctx context.Context, payoutID, signature string, at time.Time) error
	FailPayout(ctx context.Context, payoutID, message string) error
	PayoutSummary(ctx context.Context) (*Summary, error)
}

// Notifier announces completed payouts, best-effort.
type Notifier interface {
	PayoutCompleted(ctx context.Context, campaign *models.Campaign, p *models.Payout)
}

// Engine settles ended campaigns: it computes net proceeds after the
// platform fee and transfers them to the creator's wallet, one settlement
// attempt in flight per campaign.
type Engine struct {
	Store      Store
	Ledger     Ledger
	Notifier   Notifier
	FeePercent decimal.Decimal
	MinNetSOL  decimal.Decimal // dust threshold, default 0.001

	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) minNet() decimal.Decimal {
	if e.MinNetSOL.IsZero() {
		return decimal.RequireFromString("0.001")
	}
	return e.MinNetSOL
}

// SweepResult summarizes one sweep for the operator.
type SweepResult struct {
	Eligible  int `json:"eligible"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweep settles every campaign whose funding window has closed and whose
// payout is still pending. Failures are isolated per campaign: one bad
// settlement never stops the rest of the batch.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	now := e.now()
	due, err := e.Store.DuePayoutCampaigns(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Eligible: len(due)}
	for i := range due {
		c := &due[i]

		// The funding window is closed regardless of how settlement
		// goes; ending the campaign is idempotent.
		if err := e.Store.MarkCampaignEnded(ctx, c.ID, now); err != nil {
			log.Printf("payouts: mark campaign %s ended failed: %v", c.ID, err)
			res.Failed++
			continue
		}
		c.Status = models.CampaignEnded

		switch err := e.settle(ctx, c); {
		case err == nil:
			res.Completed++
		case errors.Is(err, ErrNoPayoutWallet):
			// Stays pending for operator follow-up: a missing wallet
			// is a missing precondition, not a failed transfer.
			log.Printf("payouts: campaign %s creator has no wallet address", c.ID)
			res.Skipped++
		case errors.Is(err, ErrDustAmount), errors.Is(err, ErrAlreadyClaimed):
			log.Printf("payouts: campaign %s skipped: %v", c.ID, err)
			res.Skipped++
		default:
			log.Printf("payouts: campaign %s settlement failed: %v", c.ID, err)
			res.Failed++
		}
	}
	return res, nil
}

// settle runs one settlement attempt. The pending->processing claim happens
// only after the cheap precondition checks so skips leave no state behind.
func (e *Engine) settle(ctx context.Context, c *models.Campaign) error {
	if c.CreatorWallet == nil || *c.CreatorWallet == "" {
		return ErrNoPayoutWallet
	}

	total := c.RaisedSOL
	fee := total.Mul(e.FeePercent).Div(decimal.NewFromInt(100))
	net := total.Sub(fee)
	if net.LessThan(e.minNet()) {
		return fmt.Errorf("%w: %s", ErrDustAmount, net)
	}

	claimed, err := e.Store.ClaimCampaignPayout(ctx, c.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyClaimed
	}

	payout := &models.Payout{
		ID:              uuid.NewString(),
		CampaignID:      c.ID,
		TotalRaised:     total,
		PlatformFee:     fee,
		NetAmount:       net,
		RecipientWallet: *c.CreatorWallet,
		Status:          models.PayoutProcessing,
		CreatedAt:       e.now(),
	}
	if err := e.Store.CreatePayout(ctx, payout); err != nil {
		// Without a payout row there is nothing to fail or retry; hand
		// the claim back so the next sweep picks the campaign up again.
		if rerr := e.Store.ReleaseCampaignPayout(ctx, c.ID); rerr != nil {
			log.Printf("payouts: release claim for campaign %s failed: %v", c.ID, rerr)
		}
		return err
	}

	signature, err := e.Ledger.SendTransfer(ctx, *c.CreatorWallet, net)
	if err != nil {
		if ferr := e.Store.FailPayout(ctx, payout.ID, err.Error()); ferr != nil {
			log.Printf("payouts: record failure for payout %s failed: %v", payout.ID, ferr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	completedAt := e.now()
	if err := e.Store.CompletePayout(ctx, payout.ID, signature, completedAt); err != nil {
		// Funds moved; surface loudly but do not retry the transfer.
		return fmt.Errorf("transfer %s sent but completion not recorded: %w", signature, err)
	}
	payout.TxSignature = &signature
	payout.Status = models.PayoutCompleted
	payout.CompletedAt = &completedAt
	log.Printf("payouts: campaign %s settled, net=%s sig=%s", c.ID, net, signature)

	if e.Notifier != nil {
		e.Notifier.PayoutCompleted(ctx, c, payout)
	}
	return nil
}

// Retry re-runs settlement for a campaign whose last attempt failed. It is
// operator-triggered only; failed payouts are never retried automatically.
func (e *Engine) Retry(ctx context.Context, campaignID string) error {
	c, err := e.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}
	if c.PayoutStatus != models.PayoutFailed {
		return ErrPayoutNotRetryable
	}
	if c.CreatorWallet == nil || *c.CreatorWallet == "" {
		return ErrNoPayoutWallet
	}

	reset, err := e.Store.ResetPayoutStatus(ctx, campaignID)
	if err != nil {
		return err
	}
	if !reset {
		return ErrPayoutNotRetryable
	}
	return e.settle(ctx, c)
}

// Summary aggregates payout rows for the operator endpoint.
type Summary struct {
	TotalPayouts     int64           `json:"total_payouts"`
	CompletedPayouts int64           `json:"completed_payouts"`
	PendingPayouts   int64           `json:"pending_payouts"`
	FailedPayouts    int64           `json:"failed_payouts"`
	TotalPaidOutSOL  decimal.Decimal `json:"total_paid_out_sol"`
	TotalFeesSOL     decimal.Decimal `json:"total_fees_sol"`
}

func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	return e.Store.PayoutSummary(ctx)
}
