package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	kp, err := KeypairFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	return kp
}

func TestLamportConversions(t *testing.T) {
	require.Equal(t, "1", LamportsToSOL(LamportsPerSOL).String())
	require.Equal(t, "0.000000001", LamportsToSOL(1).String())
	require.Equal(t, "1.5", LamportsToSOL(1_500_000_000).String())

	lamports, err := SOLToLamports(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000_000), lamports)

	// Sub-lamport precision truncates.
	lamports, err = SOLToLamports(decimal.RequireFromString("0.0000000019"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), lamports)

	_, err = SOLToLamports(decimal.RequireFromString("-1"))
	require.Error(t, err)
}

func TestKeypairFromBase58(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	kp, err := KeypairFromBase58(base58.Encode(priv))
	require.NoError(t, err)
	require.Equal(t, base58.Encode(pub), kp.Address())

	_, err = KeypairFromBase58("tooshort")
	require.Error(t, err)
}

func TestValidAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	require.True(t, ValidAddress(base58.Encode(pub)))
	require.True(t, ValidAddress(systemProgramID))
	require.False(t, ValidAddress(""))
	require.False(t, ValidAddress("short"))
	require.False(t, ValidAddress("0OIl+not-base58-at-all-0OIl+not-base58"))
}

func TestAppendCompactU16(t *testing.T) {
	require.Equal(t, []byte{0x00}, appendCompactU16(nil, 0))
	require.Equal(t, []byte{0x7f}, appendCompactU16(nil, 0x7f))
	require.Equal(t, []byte{0x80, 0x01}, appendCompactU16(nil, 0x80))
	require.Equal(t, []byte{0xff, 0x01}, appendCompactU16(nil, 0xff))
	require.Equal(t, []byte{0x80, 0x02}, appendCompactU16(nil, 0x100))
}

func TestBuildTransferTx(t *testing.T) {
	kp := testKeypair(t)
	toPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	to := base58.Encode(toPub)

	blockhashBytes := make([]byte, 32)
	_, err = rand.Read(blockhashBytes)
	require.NoError(t, err)
	blockhash := base58.Encode(blockhashBytes)

	raw, err := buildTransferTx(kp, to, 42_000_000, blockhash)
	require.NoError(t, err)

	// One signature, then the message.
	require.Equal(t, byte(1), raw[0])
	sig := raw[1 : 1+ed25519.SignatureSize]
	msg := raw[1+ed25519.SignatureSize:]
	require.True(t, ed25519.Verify(kp.pub, msg, sig))

	// Header and account table.
	require.Equal(t, []byte{1, 0, 1}, msg[0:3])
	require.Equal(t, byte(3), msg[3])
	require.Equal(t, []byte(kp.pub), msg[4:36])
	require.Equal(t, toPub, ed25519.PublicKey(msg[36:68]))
	require.Equal(t, systemProgramID, base58.Encode(msg[68:100]))
	require.Equal(t, blockhashBytes, msg[100:132])

	// Single transfer instruction: program index 2, accounts [0 1], then
	// 12 bytes of data (u32 discriminator 2, u64 lamports).
	require.Equal(t, []byte{1, 2, 2, 0, 1, 12}, msg[132:138])
	data := msg[138:150]
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	require.Equal(t, uint64(42_000_000), binary.LittleEndian.Uint64(data[4:12]))
	require.Len(t, msg, 150)

	_, err = buildTransferTx(kp, "not-an-address", 1, blockhash)
	require.Error(t, err)
	_, err = buildTransferTx(kp, to, 1, "bad-blockhash")
	require.Error(t, err)
}
