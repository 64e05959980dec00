package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"solio/internal/auth"
	"solio/internal/donations"
	"solio/internal/models"
	"solio/internal/payouts"
	"solio/internal/pricing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Auth      *auth.Service
	Donations *donations.Service
	Payouts   *payouts.Engine
	Prices    *pricing.Cache
}

func NewHandler(authSvc *auth.Service, donationsSvc *donations.Service, engine *payouts.Engine, prices *pricing.Cache) *Handler {
	return &Handler{Auth: authSvc, Donations: donationsSvc, Payouts: engine, Prices: prices}
}

type nonceRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type nonceResponse struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at"`
}

func (h *Handler) IssueNonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ch, message, err := h.Auth.Issue(r.Context(), req.WalletAddress)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidWallet) {
			writeError(w, http.StatusBadRequest, "invalid wallet address")
			return
		}
		writeError(w, http.StatusInternalServerError, "issue nonce failed")
		return
	}

	writeJSON(w, http.StatusOK, nonceResponse{
		Nonce:     ch.Token,
		Message:   message,
		ExpiresAt: ch.ExpiresAt.Format(time.RFC3339),
	})
}

type verifyWalletRequest struct {
	WalletAddress string `json:"wallet_address"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
}

func (h *Handler) VerifyWallet(w http.ResponseWriter, r *http.Request) {
	var req verifyWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	err := h.Auth.Verify(r.Context(), req.WalletAddress, req.Nonce, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidWallet):
			writeError(w, http.StatusBadRequest, "invalid wallet address")
		case errors.Is(err, auth.ErrChallengeNotFound):
			writeError(w, http.StatusBadRequest, "challenge not found or already used")
		case errors.Is(err, auth.ErrChallengeExpired):
			writeError(w, http.StatusBadRequest, "challenge expired")
		case errors.Is(err, auth.ErrInvalidSignature):
			writeError(w, http.StatusUnauthorized, "signature verification failed")
		default:
			writeError(w, http.StatusInternalServerError, "verify wallet failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"wallet_address": req.WalletAddress,
	})
}

type verifyDonationRequest struct {
	CampaignID   string          `json:"campaign_id"`
	TxSignature  string          `json:"tx_signature"`
	AmountSOL    decimal.Decimal `json:"amount_sol"`
	DonorWallet  string          `json:"donor_wallet"`
	UserID       *string         `json:"user_id,omitempty"`
	RewardTierID *string         `json:"reward_tier_id,omitempty"`
	Message      string          `json:"message,omitempty"`
	DonorEmail   string          `json:"donor_email,omitempty"`
}

type contributionResponse struct {
	ID           string          `json:"id"`
	CampaignID   string          `json:"campaign_id"`
	AmountSOL    decimal.Decimal `json:"amount_sol"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	TxSignature  string          `json:"tx_signature"`
	DonorWallet  string          `json:"donor_wallet"`
	RewardTierID *string         `json:"reward_tier_id,omitempty"`
	Message      *string         `json:"message,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at"`
}

type milestoneResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	AmountSOL decimal.Decimal `json:"amount_sol"`
}

type verifyDonationResponse struct {
	Success         bool                 `json:"success"`
	Donation        contributionResponse `json:"donation"`
	RaisedSOL       decimal.Decimal      `json:"raised_sol"`
	ProgressPercent decimal.Decimal      `json:"progress_percent"`
	Milestones      []milestoneResponse  `json:"milestones_reached,omitempty"`
}

func (h *Handler) VerifyDonation(w http.ResponseWriter, r *http.Request) {
	var req verifyDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.Donations.Process(r.Context(), donations.ProcessRequest{
		CampaignID:   req.CampaignID,
		TxSignature:  req.TxSignature,
		AmountSOL:    req.AmountSOL,
		DonorWallet:  req.DonorWallet,
		UserID:       req.UserID,
		RewardTierID: req.RewardTierID,
		Message:      req.Message,
		DonorEmail:   req.DonorEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, donations.ErrMissingFields),
			errors.Is(err, donations.ErrInvalidAmount),
			errors.Is(err, donations.ErrInvalidWallet),
			errors.Is(err, donations.ErrBelowTierMinimum),
			errors.Is(err, donations.ErrContactRequired),
			errors.Is(err, donations.ErrInvalidRewardTier):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, donations.ErrCampaignNotFound):
			writeError(w, http.StatusNotFound, "campaign not found")
		case errors.Is(err, donations.ErrCampaignClosed):
			writeError(w, http.StatusConflict, "campaign no longer accepts donations")
		case errors.Is(err, donations.ErrDuplicateTransaction):
			writeError(w, http.StatusConflict, "transaction already processed")
		case errors.Is(err, donations.ErrRewardTierSoldOut):
			writeError(w, http.StatusConflict, "reward tier is sold out")
		case errors.Is(err, donations.ErrTransactionNotFound):
			writeError(w, http.StatusBadRequest, "transaction not found on chain")
		case errors.Is(err, donations.ErrTransactionFailed):
			writeError(w, http.StatusBadRequest, "transaction failed on chain")
		case errors.Is(err, donations.ErrTransferNotFound):
			writeError(w, http.StatusBadRequest, "no matching transfer in transaction")
		default:
			writeError(w, http.StatusInternalServerError, "donation verification failed")
		}
		return
	}

	resp := verifyDonationResponse{
		Success:   true,
		Donation:  toContributionResponse(res.Contribution),
		RaisedSOL: res.RaisedSOL,
	}
	if res.Campaign.GoalSOL.IsPositive() {
		resp.ProgressPercent = res.RaisedSOL.Div(res.Campaign.GoalSOL).Mul(decimal.NewFromInt(100)).Round(2)
	}
	for i := range res.ReachedMilestones {
		m := &res.ReachedMilestones[i]
		resp.Milestones = append(resp.Milestones, milestoneResponse{
			ID:        m.ID,
			Title:     m.Title,
			AmountSOL: m.AmountSOL,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type listDonationsResponse struct {
	Donations []contributionResponse `json:"donations"`
	Total     int64                  `json:"total"`
	Page      int                    `json:"page"`
	PerPage   int                    `json:"per_page"`
}

func (h *Handler) ListCampaignDonations(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if campaignID == "" {
		writeError(w, http.StatusBadRequest, "missing campaign id")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	contributions, total, err := h.Donations.List(r.Context(), campaignID, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list donations failed")
		return
	}

	resp := listDonationsResponse{
		Donations: make([]contributionResponse, 0, len(contributions)),
		Total:     total,
		Page:      page,
		PerPage:   perPage,
	}
	for i := range contributions {
		resp.Donations = append(resp.Donations, toContributionResponse(&contributions[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	TotalDonations int64            `json:"total_donations"`
	TotalRaisedSOL decimal.Decimal  `json:"total_raised_sol"`
	TotalRaisedUSD *decimal.Decimal `json:"total_raised_usd,omitempty"`
	TotalCampaigns int64            `json:"total_campaigns"`
}

func (h *Handler) DonationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Donations.PlatformStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "donation stats failed")
		return
	}

	resp := statsResponse{
		TotalDonations: stats.TotalDonations,
		TotalRaisedSOL: stats.TotalRaisedSOL,
		TotalCampaigns: stats.TotalCampaigns,
	}
	if h.Prices != nil {
		if usd, ok := h.Prices.SOLToUSD(r.Context(), stats.TotalRaisedSOL); ok {
			rounded := usd.Round(2)
			resp.TotalRaisedUSD = &rounded
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	res, err := h.Payouts.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "payout sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if campaignID == "" {
		writeError(w, http.StatusBadRequest, "missing campaign id")
		return
	}

	err := h.Payouts.Retry(r.Context(), campaignID)
	if err != nil {
		switch {
		case errors.Is(err, payouts.ErrCampaignNotFound):
			writeError(w, http.StatusNotFound, "campaign not found")
		case errors.Is(err, payouts.ErrPayoutNotRetryable):
			writeError(w, http.StatusConflict, "payout is not in failed status")
		case errors.Is(err, payouts.ErrNoPayoutWallet):
			writeError(w, http.StatusPreconditionFailed, "creator has no wallet address set")
		case errors.Is(err, payouts.ErrDustAmount):
			writeError(w, http.StatusConflict, "net amount below minimum payout")
		case errors.Is(err, payouts.ErrTransferFailed):
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   "payout transfer failed",
			})
		default:
			writeError(w, http.StatusInternalServerError, "payout retry failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) PayoutSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Payouts.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "payout summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func toContributionResponse(c *models.Contribution) contributionResponse {
	return contributionResponse{
		ID:           c.ID,
		CampaignID:   c.CampaignID,
		AmountSOL:    c.AmountSOL,
		PlatformFee:  c.PlatformFee,
		TxSignature:  c.TxSignature,
		DonorWallet:  c.DonorWallet,
		RewardTierID: c.RewardTierID,
		Message:      c.Message,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}
