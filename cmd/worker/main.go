package main

import (
	"context"
	"log"
	"time"

	"solio/internal/auth"
	"solio/internal/chain"
	"solio/internal/config"
	"solio/internal/db"
	"solio/internal/notify"
	"solio/internal/payouts"
	"solio/internal/store"
	"solio/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	rpc, err := chain.NewMultiClient(cfg.Solana.RPCEndpoints, cfg.Solana.FailoverThreshold)
	if err != nil {
		log.Fatalf("rpc client failed: %v", err)
	}

	kp, err := chain.KeypairFromBase58(cfg.Solana.PlatformSecret)
	if err != nil {
		log.Fatalf("platform keypair failed: %v", err)
	}
	if kp.Address() != cfg.Solana.PlatformWallet {
		log.Fatalf("platform secret does not match wallet %s", cfg.Solana.PlatformWallet)
	}

	if balance, err := rpc.GetBalance(ctx, cfg.Solana.PlatformWallet); err != nil {
		log.Printf("platform balance check failed: %v", err)
	} else {
		log.Printf("platform wallet balance: %s SOL", balance)
	}

	notifier := &notify.Notifier{Store: st}
	engine := &payouts.Engine{
		Store:      st,
		Ledger:     &chain.Treasury{Client: rpc, Keypair: kp},
		Notifier:   notifier,
		FeePercent: cfg.FeePercent,
		MinNetSOL:  cfg.MinNetSOL,
	}
	authSvc := &auth.Service{
		Store: st,
		TTL:   time.Duration(cfg.Auth.NonceTTLMinutes) * time.Minute,
	}

	if cfg.Solana.WSEndpoint != "" {
		log.Printf("ws endpoint: %s", cfg.Solana.WSEndpoint)
	}

	w := &worker.Worker{
		Store:         st,
		Chain:         rpc,
		Engine:        engine,
		Auth:          authSvc,
		SweepInterval: time.Duration(cfg.Payouts.SweepIntervalMinutes) * time.Minute,
		PurgeInterval: time.Duration(cfg.Payouts.PurgeIntervalMinutes) * time.Minute,
		WSEndpoint:    cfg.Solana.WSEndpoint,
	}

	log.Printf("worker started (rpc=%s)", rpc.BaseURL())
	w.Run(ctx)
}
