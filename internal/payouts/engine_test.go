package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"solio/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same claim semantics as the
// SQL implementation: the pending->processing transition succeeds once.
type memStore struct {
	campaigns       map[string]*models.Campaign
	payouts         map[string]*models.Payout
	createPayoutErr error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: map[string]*models.Campaign{},
		payouts:   map[string]*models.Payout{},
	}
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*models.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) DuePayoutCampaigns(_ context.Context, now time.Time) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, c := range m.campaigns {
		if (c.Status == models.CampaignActive || c.Status == models.CampaignEnded) &&
			c.EndAt.Before(now) && c.PayoutStatus == models.PayoutPending && c.RaisedSOL.IsPositive() {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) MarkCampaignEnded(_ context.Context, id string, now time.Time) error {
	c, ok := m.campaigns[id]
	if ok && c.Status == models.CampaignActive && c.EndAt.Before(now) {
		c.Status = models.CampaignEnded
	}
	return nil
}

func (m *memStore) ClaimCampaignPayout(_ context.Context, id string) (bool, error) {
	c, ok := m.campaigns[id]
	if !ok || c.PayoutStatus != models.PayoutPending {
		return false, nil
	}
	c.PayoutStatus = models.PayoutProcessing
	return true, nil
}

func (m *memStore) ResetPayoutStatus(_ context.Context, id string) (bool, error) {
	c, ok := m.campaigns[id]
	if !ok || c.PayoutStatus != models.PayoutFailed {
		return false, nil
	}
	c.PayoutStatus = models.PayoutPending
	return true, nil
}

func (m *memStore) ReleaseCampaignPayout(_ context.Context, id string) error {
	c, ok := m.campaigns[id]
	if ok && c.PayoutStatus == models.PayoutProcessing {
		c.PayoutStatus = models.PayoutPending
	}
	return nil
}

func (m *memStore) CreatePayout(_ context.Context, p *models.Payout) error {
	if m.createPayoutErr != nil {
		return m.createPayoutErr
	}
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

func (m *memStore) CompletePayout(_ context.Context, payoutID, signature string, at time.Time) error {
	p := m.payouts[payoutID]
	p.Status = models.PayoutCompleted
	p.TxSignature = &signature
	p.CompletedAt = &at
	m.campaigns[p.CampaignID].PayoutStatus = models.PayoutCompleted
	return nil
}

func (m *memStore) FailPayout(_ context.Context, payoutID, message string) error {
	p := m.payouts[payoutID]
	p.Status = models.PayoutFailed
	p.ErrorMessage = &message
	m.campaigns[p.CampaignID].PayoutStatus = models.PayoutFailed
	return nil
}

func (m *memStore) PayoutSummary(_ context.Context) (*Summary, error) {
	sum := &Summary{}
	for _, p := range m.payouts {
		sum.TotalPayouts++
		switch p.Status {
		case models.PayoutCompleted:
			sum.CompletedPayouts++
			sum.TotalPaidOutSOL = sum.TotalPaidOutSOL.Add(p.NetAmount)
			sum.TotalFeesSOL = sum.TotalFeesSOL.Add(p.PlatformFee)
		case models.PayoutFailed:
			sum.FailedPayouts++
		default:
			sum.PendingPayouts++
		}
	}
	return sum, nil
}

// fakeLedger records transfers and can be told to fail.
type fakeLedger struct {
	err       error
	transfers []fakeTransfer
}

type fakeTransfer struct {
	to     string
	amount decimal.Decimal
}

func (f *fakeLedger) SendTransfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.transfers = append(f.transfers, fakeTransfer{to: to, amount: amount})
	return "sig-transfer", nil
}

const creatorWallet = "So11111111111111111111111111111111111111112"

type engineEnv struct {
	engine *Engine
	store  *memStore
	ledger *fakeLedger
	now    time.Time
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	ledger := &fakeLedger{}
	engine := &Engine{
		Store:      store,
		Ledger:     ledger,
		FeePercent: decimal.RequireFromString("2.5"),
		Now:        func() time.Time { return now },
	}
	return &engineEnv{engine: engine, store: store, ledger: ledger, now: now}
}

func (e *engineEnv) addCampaign(id string, raised string, wallet *string) *models.Campaign {
	c := &models.Campaign{
		ID:            id,
		CreatorID:     "user-1",
		CreatorWallet: wallet,
		Title:         "Campaign " + id,
		RaisedSOL:     decimal.RequireFromString(raised),
		EndAt:         e.now.Add(-time.Hour),
		Status:        models.CampaignActive,
		PayoutStatus:  models.PayoutPending,
	}
	e.store.campaigns[id] = c
	return c
}

func strPtr(s string) *string { return &s }

func TestSweepSettlesEndedCampaign(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", strPtr(creatorWallet))

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Completed: 1}, res)

	require.Len(t, env.ledger.transfers, 1)
	require.Equal(t, creatorWallet, env.ledger.transfers[0].to)
	require.Equal(t, "97.5", env.ledger.transfers[0].amount.String())

	c := env.store.campaigns["camp-1"]
	require.Equal(t, models.CampaignEnded, c.Status)
	require.Equal(t, models.PayoutCompleted, c.PayoutStatus)

	require.Len(t, env.store.payouts, 1)
	for _, p := range env.store.payouts {
		require.Equal(t, "100", p.TotalRaised.String())
		require.Equal(t, "2.5", p.PlatformFee.String())
		require.Equal(t, "97.5", p.NetAmount.String())
		require.Equal(t, models.PayoutCompleted, p.Status)
		require.NotNil(t, p.TxSignature)
	}
}

func TestSweepFeeMath(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "50", strPtr(creatorWallet))

	_, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, "48.75", env.ledger.transfers[0].amount.String())
}

func TestSweepSkipsMissingWallet(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", nil)

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Skipped: 1}, res)
	require.Empty(t, env.ledger.transfers)

	// Stays pending so an operator can settle after the wallet is set.
	c := env.store.campaigns["camp-1"]
	require.Equal(t, models.CampaignEnded, c.Status)
	require.Equal(t, models.PayoutPending, c.PayoutStatus)
	require.Empty(t, env.store.payouts)
}

func TestSweepSkipsDust(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "0.001", strPtr(creatorWallet))

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Skipped: 1}, res)
	require.Empty(t, env.ledger.transfers)
	require.Equal(t, models.PayoutPending, env.store.campaigns["camp-1"].PayoutStatus)
}

func TestSweepTransferFailure(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", strPtr(creatorWallet))
	env.ledger.err = errors.New("blockhash not found")

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Failed: 1}, res)

	c := env.store.campaigns["camp-1"]
	require.Equal(t, models.PayoutFailed, c.PayoutStatus)
	require.Len(t, env.store.payouts, 1)
	for _, p := range env.store.payouts {
		require.Equal(t, models.PayoutFailed, p.Status)
		require.NotNil(t, p.ErrorMessage)
		require.Contains(t, *p.ErrorMessage, "blockhash not found")
	}
}

func TestSweepReleasesClaimWhenPayoutRowFails(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", strPtr(creatorWallet))
	env.store.createPayoutErr = errors.New("db unavailable")

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Failed: 1}, res)
	require.Empty(t, env.ledger.transfers)

	// The claim is handed back: no payout row exists, so the campaign must
	// not be stranded in processing where neither sweep nor retry can
	// reach it.
	require.Equal(t, models.PayoutPending, env.store.campaigns["camp-1"].PayoutStatus)
	require.Empty(t, env.store.payouts)

	// The next sweep settles it.
	env.store.createPayoutErr = nil
	res, err = env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 1, Completed: 1}, res)
	require.Equal(t, models.PayoutCompleted, env.store.campaigns["camp-1"].PayoutStatus)
}

func TestSweepFailureIsolation(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-ok", "10", strPtr(creatorWallet))
	env.addCampaign("camp-no-wallet", "10", nil)

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{Eligible: 2, Completed: 1, Skipped: 1}, res)
}

func TestSweepIgnoresZeroRaised(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "0", strPtr(creatorWallet))

	res, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, res)
}

func TestRetryFailedPayout(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", strPtr(creatorWallet))
	env.ledger.err = errors.New("transient")

	_, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.PayoutFailed, env.store.campaigns["camp-1"].PayoutStatus)

	env.ledger.err = nil
	require.NoError(t, env.engine.Retry(context.Background(), "camp-1"))
	require.Equal(t, models.PayoutCompleted, env.store.campaigns["camp-1"].PayoutStatus)
	require.Len(t, env.ledger.transfers, 1)
	require.Equal(t, "97.5", env.ledger.transfers[0].amount.String())
}

func TestRetryGating(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, env.engine.Retry(ctx, "no-such-campaign"), ErrCampaignNotFound)

	c := env.addCampaign("camp-1", "100", strPtr(creatorWallet))
	require.ErrorIs(t, env.engine.Retry(ctx, "camp-1"), ErrPayoutNotRetryable)

	c.PayoutStatus = models.PayoutCompleted
	require.ErrorIs(t, env.engine.Retry(ctx, "camp-1"), ErrPayoutNotRetryable)

	c.PayoutStatus = models.PayoutFailed
	c.CreatorWallet = nil
	require.ErrorIs(t, env.engine.Retry(ctx, "camp-1"), ErrNoPayoutWallet)
}

func TestSummaryAggregates(t *testing.T) {
	env := newEngineEnv(t)
	env.addCampaign("camp-1", "100", strPtr(creatorWallet))
	env.addCampaign("camp-2", "10", strPtr(creatorWallet))

	_, err := env.engine.Sweep(context.Background())
	require.NoError(t, err)

	sum, err := env.engine.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.TotalPayouts)
	require.Equal(t, int64(2), sum.CompletedPayouts)
	require.Equal(t, "107.25", sum.TotalPaidOutSOL.String())
	require.Equal(t, "2.75", sum.TotalFeesSOL.String())
}
