package auth

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// VerifySignature checks that message was signed by the key behind the
// base58 wallet address. Wallet adapters disagree on signature encoding, so
// base58 is tried first with a base64 fallback. Any decode or verification
// failure returns false; this function never returns an error and never
// logs the material it is given.
func VerifySignature(walletAddress, message, signature string) bool {
	pub := base58.Decode(walletAddress)
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	sig := base58.Decode(signature)
	if len(sig) != ed25519.SignatureSize {
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil || len(decoded) != ed25519.SignatureSize {
			return false
		}
		sig = decoded
	}

	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
