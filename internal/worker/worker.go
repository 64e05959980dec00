package worker

import (
	"context"
	"log"
	"time"

	"solio/internal/auth"
	"solio/internal/chain"
	"solio/internal/payouts"
	"solio/internal/store"
)

type Worker struct {
	Store           *store.Store
	Chain           *chain.MultiClient
	Engine          *payouts.Engine
	Auth            *auth.Service
	SweepInterval   time.Duration
	PurgeInterval   time.Duration
	ConfirmInterval time.Duration
	WSEndpoint      string
}

func (w *Worker) Run(ctx context.Context) {
	go w.RunWS(ctx)
	go w.runPurge(ctx)
	go w.runConfirm(ctx)

	ticker := time.NewTicker(w.SweepInterval)
	defer ticker.Stop()

	for {
		if res, err := w.Engine.Sweep(ctx); err != nil {
			log.Printf("sweep error: %v", err)
		} else if res.Eligible > 0 {
			log.Printf("sweep eligible=%d completed=%d failed=%d skipped=%d",
				res.Eligible, res.Completed, res.Failed, res.Skipped)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) runPurge(ctx context.Context) {
	ticker := time.NewTicker(w.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := w.Auth.PurgeExpired(ctx)
		if err != nil {
			log.Printf("purge challenges error: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("purged %d expired challenges", n)
		}
	}
}

// runConfirm polls signature statuses for completed payouts that have not
// reached finality yet and stamps confirmed_at once the ledger finalizes
// them. A payout whose transfer the ledger reports as failed is flipped back
// to failed for operator retry.
func (w *Worker) runConfirm(ctx context.Context) {
	interval := w.ConfirmInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := w.ConfirmOnce(ctx); err != nil {
			log.Printf("confirm payouts error: %v", err)
		}
	}
}

func (w *Worker) ConfirmOnce(ctx context.Context) error {
	pending, err := w.Store.UnconfirmedPayouts(ctx, 50)
	if err != nil {
		return err
	}
	for i := range pending {
		p := &pending[i]
		if p.TxSignature == nil {
			continue
		}
		status, err := w.Chain.SignatureStatus(ctx, *p.TxSignature)
		if err != nil {
			log.Printf("signature status %s failed: %v", *p.TxSignature, err)
			continue
		}
		switch status {
		case chain.TxStatusConfirmed:
			if err := w.Store.ConfirmPayout(ctx, p.ID, time.Now().UTC()); err != nil {
				log.Printf("confirm payout %s failed: %v", p.ID, err)
				continue
			}
			log.Printf("payout %s confirmed sig=%s", p.ID, *p.TxSignature)
		case chain.TxStatusFailed:
			if err := w.Store.FailPayout(ctx, p.ID, "transfer failed after submission"); err != nil {
				log.Printf("fail payout %s failed: %v", p.ID, err)
				continue
			}
			log.Printf("payout %s transfer failed on chain sig=%s", p.ID, *p.TxSignature)
		}
	}
	return nil
}
