package donations

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"solio/internal/chain"
	"solio/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingFields        = errors.New("missing required data")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidWallet        = errors.New("invalid wallet address")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrCampaignClosed       = errors.New("campaign no longer accepts donations")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrInvalidRewardTier    = errors.New("invalid reward tier")
	ErrRewardTierSoldOut    = errors.New("reward tier is sold out")
	ErrBelowTierMinimum     = errors.New("amount below reward tier minimum")
	ErrContactRequired      = errors.New("email is required for reward delivery")
)

// maxAmountSOL caps claimed donation amounts to something a ledger could
// plausibly carry.
var maxAmountSOL = decimal.NewFromInt(1_000_000_000)

const maxMessageLen = 1000

// Store is the persistence the donation service needs. RecordContribution
// is one atomic unit: insert the contribution, claim the tier, bump the
// campaign total and mark reached milestones, serialized on the campaign
// row. It must return ErrDuplicateTransaction when the signature's unique
// constraint fires, and re-check campaign/tier state under lock.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	GetRewardTier(ctx context.Context, id string) (*models.RewardTier, error)
	ContributionBySignature(ctx context.Context, signature string) (*models.Contribution, error)
	RecordContribution(ctx context.Context, c *models.Contribution) (decimal.Decimal, []models.Milestone, error)
	ListCampaignContributions(ctx context.Context, campaignID string, limit, offset int) ([]models.Contribution, int64, error)
	DonationStats(ctx context.Context) (*Stats, error)
}

// Notifier dispatches best-effort notifications after a contribution
// commits. Implementations log their own failures; nothing here may fail
// the contribution.
type Notifier interface {
	DonationReceived(ctx context.Context, campaign *models.Campaign, c *models.Contribution)
	MilestoneReached(ctx context.Context, campaign *models.Campaign, m *models.Milestone)
}

// Stats are platform-wide confirmed-donation totals.
type Stats struct {
	TotalDonations int64
	TotalRaisedSOL decimal.Decimal
	TotalCampaigns int64
}

// Service verifies claimed on-chain donations and records them.
type Service struct {
	Store          Store
	Verifier       *Verifier
	Notifier       Notifier
	PlatformWallet string
	FeePercent     decimal.Decimal

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type ProcessRequest struct {
	CampaignID   string
	TxSignature  string
	AmountSOL    decimal.Decimal
	DonorWallet  string
	UserID       *string
	RewardTierID *string
	Message      string
	DonorEmail   string
}

type ProcessResult struct {
	Contribution      *models.Contribution
	Campaign          *models.Campaign
	RaisedSOL         decimal.Decimal
	ReachedMilestones []models.Milestone
}

// Process validates a donation claim, verifies the transfer on chain, and
// records the contribution atomically. The ledger signature's uniqueness
// constraint is the real idempotency boundary; the early duplicate lookup
// only produces a friendlier error for the common resubmit case.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if req.CampaignID == "" || req.TxSignature == "" || req.DonorWallet == "" {
		return nil, ErrMissingFields
	}
	if !req.AmountSOL.IsPositive() || req.AmountSOL.GreaterThan(maxAmountSOL) {
		return nil, ErrInvalidAmount
	}
	if !chain.ValidAddress(req.DonorWallet) {
		return nil, ErrInvalidWallet
	}

	campaign, err := s.Store.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if !campaign.AcceptingFunds(s.now()) {
		return nil, ErrCampaignClosed
	}

	existing, err := s.Store.ContributionBySignature(ctx, req.TxSignature)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateTransaction
	}

	if req.RewardTierID != nil {
		tier, err := s.Store.GetRewardTier(ctx, *req.RewardTierID)
		if err != nil {
			return nil, err
		}
		if tier == nil || tier.CampaignID != campaign.ID {
			return nil, ErrInvalidRewardTier
		}
		if !tier.Available() {
			return nil, ErrRewardTierSoldOut
		}
		if req.AmountSOL.LessThan(tier.MinAmountSOL) {
			return nil, ErrBelowTierMinimum
		}
		if req.DonorEmail == "" {
			return nil, ErrContactRequired
		}
	}

	if err := s.Verifier.VerifyTransfer(ctx, req.TxSignature, req.DonorWallet, s.PlatformWallet, req.AmountSOL); err != nil {
		return nil, err
	}

	contribution := &models.Contribution{
		ID:           uuid.NewString(),
		CampaignID:   campaign.ID,
		UserID:       req.UserID,
		RewardTierID: req.RewardTierID,
		AmountSOL:    req.AmountSOL,
		PlatformFee:  req.AmountSOL.Mul(s.FeePercent).Div(decimal.NewFromInt(100)),
		TxSignature:  req.TxSignature,
		DonorWallet:  req.DonorWallet,
		Status:       models.ContributionConfirmed,
		CreatedAt:    s.now(),
	}
	if msg := truncate(req.Message, maxMessageLen); msg != "" {
		contribution.Message = &msg
	}
	if req.DonorEmail != "" {
		email := req.DonorEmail
		contribution.DonorEmail = &email
	}

	raised, reached, err := s.Store.RecordContribution(ctx, contribution)
	if err != nil {
		return nil, err
	}

	if s.Notifier != nil {
		s.Notifier.DonationReceived(ctx, campaign, contribution)
		for i := range reached {
			s.Notifier.MilestoneReached(ctx, campaign, &reached[i])
		}
	}

	return &ProcessResult{
		Contribution:      contribution,
		Campaign:          campaign,
		RaisedSOL:         raised,
		ReachedMilestones: reached,
	}, nil
}

// List returns confirmed contributions for a campaign, newest first.
func (s *Service) List(ctx context.Context, campaignID string, limit, offset int) ([]models.Contribution, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListCampaignContributions(ctx, campaignID, limit, offset)
}

// PlatformStats returns platform-wide donation totals.
func (s *Service) PlatformStats(ctx context.Context) (*Stats, error) {
	return s.Store.DonationStats(ctx)
}

// truncate limits s to n characters. Counting runes rather than bytes keeps
// the result valid UTF-8; a byte slice could split a multi-byte character
// and the store would reject the string.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
