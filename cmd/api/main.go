package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solio/internal/auth"
	"solio/internal/chain"
	"solio/internal/config"
	"solio/internal/db"
	"solio/internal/donations"
	internalhttp "solio/internal/http"
	"solio/internal/notify"
	"solio/internal/payouts"
	"solio/internal/pricing"
	"solio/internal/store"
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

	notifier := &notify.Notifier{Store: st}
	prices := pricing.New(cfg.Pricing.Endpoint, time.Duration(cfg.Pricing.CacheSeconds)*time.Second)

	authSvc := &auth.Service{
		Store: st,
		TTL:   time.Duration(cfg.Auth.NonceTTLMinutes) * time.Minute,
	}
	donationSvc := &donations.Service{
		Store: st,
		Verifier: &donations.Verifier{
			Ledger:       rpc,
			MaxPolls:     cfg.Verify.MaxPolls,
			PollInterval: time.Duration(cfg.Verify.PollIntervalSeconds) * time.Second,
		},
		Notifier:       notifier,
		PlatformWallet: cfg.Solana.PlatformWallet,
		FeePercent:     cfg.FeePercent,
	}
	engine := &payouts.Engine{
		Store:      st,
		Ledger:     &chain.Treasury{Client: rpc, Keypair: kp},
		Notifier:   notifier,
		FeePercent: cfg.FeePercent,
		MinNetSOL:  cfg.MinNetSOL,
	}

	h := internalhttp.NewHandler(authSvc, donationSvc, engine, prices)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
