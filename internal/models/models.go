package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignEnded     CampaignStatus = "ended"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignBanned    CampaignStatus = "banned"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "pending"
	ContributionConfirmed ContributionStatus = "confirmed"
	ContributionFailed    ContributionStatus = "failed"
)

// Campaign holds the settlement-relevant subset of a crowdfunding project.
// RaisedSOL is a denormalized running sum of confirmed contributions and is
// only ever incremented by the contribution recorder.
type Campaign struct {
	ID            string
	CreatorID     string
	CreatorWallet *string
	Title         string
	GoalSOL       decimal.Decimal
	RaisedSOL     decimal.Decimal
	EndAt         time.Time
	Status        CampaignStatus
	PayoutStatus  PayoutStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AcceptingFunds reports whether the campaign can still receive donations.
func (c *Campaign) AcceptingFunds(now time.Time) bool {
	return c.Status == CampaignActive && now.Before(c.EndAt)
}

// Contribution is one verified on-chain donation. TxSignature is the
// idempotency key: at most one row may ever exist per ledger signature.
type Contribution struct {
	ID           string
	CampaignID   string
	UserID       *string
	RewardTierID *string
	AmountSOL    decimal.Decimal
	PlatformFee  decimal.Decimal
	Message      *string
	DonorEmail   *string
	TxSignature  string
	DonorWallet  string
	Status       ContributionStatus
	CreatedAt    time.Time
}

// Milestone is a stretch goal. Reached is monotonic: once set it never
// reverts, since contributions are append-only.
type Milestone struct {
	ID         string
	CampaignID string
	Title      string
	AmountSOL  decimal.Decimal
	Reached    bool
	ReachedAt  *time.Time
	SortOrder  int
}

type RewardTier struct {
	ID           string
	CampaignID   string
	Title        string
	MinAmountSOL decimal.Decimal
	MaxClaims    *int32
	ClaimedCount int32
}

// Available reports whether the tier can still be claimed.
func (t *RewardTier) Available() bool {
	return t.MaxClaims == nil || t.ClaimedCount < *t.MaxClaims
}

// Payout is one settlement attempt for a campaign. Retries create new rows;
// the campaign's PayoutStatus reflects the latest attempt.
type Payout struct {
	ID              string
	CampaignID      string
	TotalRaised     decimal.Decimal
	PlatformFee     decimal.Decimal
	NetAmount       decimal.Decimal
	RecipientWallet string
	TxSignature     *string
	Status          PayoutStatus
	ErrorMessage    *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	ConfirmedAt     *time.Time
}

// Challenge is a single-use wallet authentication nonce. At most one valid
// (unconsumed, unexpired) challenge exists per wallet address.
type Challenge struct {
	ID            string
	WalletAddress string
	Token         string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Consumed      bool
}

func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type Notification struct {
	ID         string
	UserID     string
	Type       string
	Title      string
	Message    string
	CampaignID *string
	CreatedAt  time.Time
}
