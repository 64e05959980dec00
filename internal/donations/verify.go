package donations

import (
	"context"
	"errors"
	"log"
	"time"

	"solio/internal/chain"

	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found or not confirmed after retries")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrTransferNotFound    = errors.New("transfer not found in transaction")
)

// amountTolerance absorbs rounding from the lamport conversion when
// comparing on-chain amounts against the claimed one. Inclusive at the
// boundary.
var amountTolerance = decimal.RequireFromString("0.000001")

// LedgerReader is the read-only ledger access verification needs.
type LedgerReader interface {
	GetTransaction(ctx context.Context, signature string) (*chain.ParsedTransaction, error)
}

// Verifier confirms that a claimed transfer actually happened on chain. A
// just-submitted transaction is not immediately visible to every RPC
// endpoint, so the lookup polls with a fixed delay before giving up.
type Verifier struct {
	Ledger       LedgerReader
	MaxPolls     int           // default 10
	PollInterval time.Duration // default 2s
}

// VerifyTransfer checks that the transaction behind signature executed
// successfully and contains a system transfer from sender to recipient of
// the expected amount (within tolerance). It performs no writes and is safe
// to call repeatedly. RPC errors count as not-yet-visible polls; the
// transient budget is the poll budget.
func (v *Verifier) VerifyTransfer(ctx context.Context, signature, sender, recipient string, amount decimal.Decimal) error {
	polls := v.MaxPolls
	if polls <= 0 {
		polls = 10
	}
	interval := v.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var tx *chain.ParsedTransaction
	for attempt := 0; attempt < polls; attempt++ {
		found, err := v.Ledger.GetTransaction(ctx, signature)
		if err != nil {
			log.Printf("verify: getTransaction attempt %d/%d failed: %v", attempt+1, polls, err)
		}
		if found != nil {
			tx = found
			break
		}
		if attempt == polls-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if tx == nil {
		return ErrTransactionNotFound
	}
	if tx.Failed() {
		return ErrTransactionFailed
	}

	for i := range tx.Transaction.Message.Instructions {
		info, ok := tx.Transaction.Message.Instructions[i].Transfer()
		if !ok {
			continue
		}
		if info.Source != sender || info.Destination != recipient {
			continue
		}
		onChain := chain.LamportsToSOL(info.Lamports)
		if onChain.Sub(amount).Abs().LessThanOrEqual(amountTolerance) {
			// First matching instruction wins.
			return nil
		}
	}
	return ErrTransferNotFound
}
