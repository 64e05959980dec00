package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"solio/internal/models"

	"github.com/google/uuid"
)

// Store is the single write the notifier performs.
type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// Notifier records in-app notifications for campaign creators. Everything
// here is best-effort: a notification that cannot be written is logged and
// dropped, never propagated, so it can never roll back the contribution or
// payout that triggered it.
type Notifier struct {
	Store Store
}

func (n *Notifier) DonationReceived(ctx context.Context, campaign *models.Campaign, c *models.Contribution) {
	n.insert(ctx, &models.Notification{
		UserID:     campaign.CreatorID,
		Type:       "donation",
		Title:      fmt.Sprintf("New donation: %s SOL", c.AmountSOL.StringFixed(4)),
		Message:    fmt.Sprintf("A donor contributed to your campaign %q", campaign.Title),
		CampaignID: &campaign.ID,
	})
}

func (n *Notifier) MilestoneReached(ctx context.Context, campaign *models.Campaign, m *models.Milestone) {
	n.insert(ctx, &models.Notification{
		UserID:     campaign.CreatorID,
		Type:       "milestone",
		Title:      fmt.Sprintf("Milestone reached: %s!", m.Title),
		Message:    fmt.Sprintf("Your campaign %q reached the %s SOL milestone", campaign.Title, m.AmountSOL),
		CampaignID: &campaign.ID,
	})
}

func (n *Notifier) PayoutCompleted(ctx context.Context, campaign *models.Campaign, p *models.Payout) {
	n.insert(ctx, &models.Notification{
		UserID:     campaign.CreatorID,
		Type:       "payout",
		Title:      fmt.Sprintf("Payout sent: %s SOL", p.NetAmount),
		Message:    fmt.Sprintf("Proceeds from %q were transferred to your wallet", campaign.Title),
		CampaignID: &campaign.ID,
	})
}

func (n *Notifier) insert(ctx context.Context, row *models.Notification) {
	if n.Store == nil {
		return
	}
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now().UTC()
	if err := n.Store.InsertNotification(ctx, row); err != nil {
		log.Printf("notify: insert %s notification failed: %v", row.Type, err)
	}
}
