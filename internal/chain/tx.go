package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the ledger's fixed scale factor: amounts travel on the
// wire as integer lamports and internally as 9-fractional-digit decimals.
const LamportsPerSOL = 1_000_000_000

const systemProgramID = "11111111111111111111111111111111"

var lamportScale = decimal.NewFromInt(LamportsPerSOL)

// LamportsToSOL converts an on-wire lamport amount to decimal SOL, exactly.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportScale)
}

// SOLToLamports converts decimal SOL to lamports, truncating anything below
// one lamport.
func SOLToLamports(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, errors.New("amount is negative")
	}
	scaled := amount.Mul(lamportScale).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, errors.New("amount exceeds lamport range")
	}
	return scaled.BigInt().Uint64(), nil
}

// Keypair is the platform's Ed25519 signing key.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// KeypairFromBase58 decodes a 64-byte Ed25519 secret key in the base58
// export format wallets use.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw := base58.Decode(secret)
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must decode to %d bytes", ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	return &Keypair{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return base58.Encode(k.pub)
}

// ValidAddress reports whether s is a plausible wallet address: base58,
// 32-44 characters, decoding to a 32-byte public key.
func ValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	return len(base58.Decode(s)) == ed25519.PublicKeySize
}

// buildTransferTx assembles and signs a legacy single-instruction
// system-program transfer. Layout: signature count, signatures, then the
// message (header, account keys, blockhash, instructions), with compact-u16
// length prefixes throughout.
func buildTransferTx(kp *Keypair, to string, lamports uint64, blockhash string) ([]byte, error) {
	toKey := base58.Decode(to)
	if len(toKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("recipient address is not a valid public key")
	}
	hash := base58.Decode(blockhash)
	if len(hash) != 32 {
		return nil, fmt.Errorf("blockhash is not 32 bytes")
	}
	program := base58.Decode(systemProgramID)

	// Instruction data: u32 discriminator (2 = Transfer) + u64 lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	var msg []byte
	// Header: 1 required signature, 0 read-only signed, 1 read-only
	// unsigned (the program account).
	msg = append(msg, 1, 0, 1)
	msg = appendCompactU16(msg, 3)
	msg = append(msg, kp.pub...)
	msg = append(msg, toKey...)
	msg = append(msg, program...)
	msg = append(msg, hash...)
	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1) // funder, recipient
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	sig := ed25519.Sign(kp.priv, msg)

	var tx []byte
	tx = appendCompactU16(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	return tx, nil
}

func appendCompactU16(b []byte, v int) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}

// Treasury couples the platform keypair with a ledger client so callers can
// move funds without handling key material themselves.
type Treasury struct {
	Client  LedgerClient
	Keypair *Keypair
}

// LedgerClient is the subset of RPC operations Treasury needs; both Client
// and MultiClient satisfy it.
type LedgerClient interface {
	LatestBlockhash(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
}

// SendTransfer builds, signs and submits a transfer of amount SOL to the
// recipient. It returns the ledger signature without waiting for finality;
// callers needing confirmation poll SignatureStatus.
func (t *Treasury) SendTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	lamports, err := SOLToLamports(amount)
	if err != nil {
		return "", err
	}
	if lamports == 0 {
		return "", errors.New("transfer amount rounds to zero lamports")
	}
	blockhash, err := t.Client.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	raw, err := buildTransferTx(t.Keypair, to, lamports, blockhash)
	if err != nil {
		return "", err
	}
	return t.Client.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
}
