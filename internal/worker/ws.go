package worker

import (
	"context"
	"log"
	"time"

	"solio/internal/chain"
)

// RunWS is the fast confirmation path: it watches submitted payout
// signatures over signatureSubscribe instead of waiting for the next
// polling tick. The polling loop in runConfirm remains the source of truth;
// anything missed here is picked up there.
func (w *Worker) RunWS(ctx context.Context) {
	if w.WSEndpoint == "" {
		log.Printf("ws disabled: ws_endpoint is empty")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.watchOnce(ctx); err != nil {
			log.Printf("ws watch failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (w *Worker) watchOnce(ctx context.Context) error {
	pending, err := w.Store.UnconfirmedPayouts(ctx, 10)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	client := chain.NewWSClient(w.WSEndpoint)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	log.Printf("ws connected %s", w.WSEndpoint)

	for i := range pending {
		p := &pending[i]
		if p.TxSignature == nil {
			continue
		}
		ok, err := client.WaitForSignature(ctx, *p.TxSignature, 90*time.Second)
		if err != nil {
			// Timeout or connection loss; the poller will catch up.
			return err
		}
		if !ok {
			if err := w.Store.FailPayout(ctx, p.ID, "transfer failed after submission"); err != nil {
				log.Printf("ws fail payout %s failed: %v", p.ID, err)
			}
			continue
		}
		if err := w.Store.ConfirmPayout(ctx, p.ID, time.Now().UTC()); err != nil {
			log.Printf("ws confirm payout %s failed: %v", p.ID, err)
			continue
		}
		log.Printf("ws payout %s confirmed sig=%s", p.ID, *p.TxSignature)
	}
	return nil
}
