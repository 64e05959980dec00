package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"solio/internal/chain"
	"solio/internal/models"

	"github.com/google/uuid"
)

var (
	ErrInvalidWallet     = errors.New("invalid wallet address")
	ErrChallengeNotFound = errors.New("challenge not found or already used")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// messageTemplate is part of the wire contract with signing clients and
// must not change: wallets sign exactly this rendering of the token.
const messageTemplate = "Sign this message to authenticate with Solio.\n\nNonce: %s"

// SigningMessage renders the message a wallet must sign for a token.
func SigningMessage(token string) string {
	return fmt.Sprintf(messageTemplate, token)
}

// ChallengeStore is the persistence the challenge service needs. GetChallenge
// returns (nil, nil) when no row matches; ConsumeChallenge reports whether
// this call was the one that flipped the consumed flag.
type ChallengeStore interface {
	ReplaceChallenge(ctx context.Context, ch *models.Challenge) error
	GetChallenge(ctx context.Context, wallet, token string) (*models.Challenge, error)
	ConsumeChallenge(ctx context.Context, id string) (bool, error)
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

// Service issues and consumes single-use wallet authentication challenges.
type Service struct {
	Store ChallengeStore
	TTL   time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Issue creates a fresh challenge for the wallet, invalidating any prior
// one, and returns the challenge together with the message to sign.
func (s *Service) Issue(ctx context.Context, walletAddress string) (*models.Challenge, string, error) {
	if !chain.ValidAddress(walletAddress) {
		return nil, "", ErrInvalidWallet
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", err
	}

	now := s.now()
	ch := &models.Challenge{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Token:         hex.EncodeToString(buf),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.TTL),
	}
	if err := s.Store.ReplaceChallenge(ctx, ch); err != nil {
		return nil, "", err
	}
	return ch, SigningMessage(ch.Token), nil
}

// Verify checks the signature over an outstanding challenge and consumes it.
// Consumption is atomic: a token can authenticate at most once even when two
// requests race with the same valid signature.
func (s *Service) Verify(ctx context.Context, walletAddress, token, signature string) error {
	if !chain.ValidAddress(walletAddress) {
		return ErrInvalidWallet
	}

	ch, err := s.Store.GetChallenge(ctx, walletAddress, token)
	if err != nil {
		return err
	}
	if ch == nil || ch.Consumed {
		return ErrChallengeNotFound
	}
	if ch.Expired(s.now()) {
		return ErrChallengeExpired
	}

	if !VerifySignature(walletAddress, SigningMessage(ch.Token), signature) {
		return ErrInvalidSignature
	}

	consumed, err := s.Store.ConsumeChallenge(ctx, ch.ID)
	if err != nil {
		return err
	}
	if !consumed {
		// Lost the race to a parallel request with the same token.
		return ErrChallengeNotFound
	}
	return nil
}

// PurgeExpired bulk-deletes challenges past expiry. Safe to run while new
// challenges are being issued.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Store.DeleteExpiredChallenges(ctx, s.now())
}
