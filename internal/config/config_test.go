package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/solio"
solana:
  rpc_endpoints:
    - "https://api.devnet.solana.com"
  platform_wallet: "So11111111111111111111111111111111111111112"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "2.5", cfg.FeePercent.String())
	require.Equal(t, "0.001", cfg.MinNetSOL.String())
	require.Equal(t, 10, cfg.Auth.NonceTTLMinutes)
	require.Equal(t, 10, cfg.Verify.MaxPolls)
	require.Equal(t, 2, cfg.Verify.PollIntervalSeconds)
	require.Equal(t, 5, cfg.Payouts.SweepIntervalMinutes)
	require.Equal(t, 15, cfg.Payouts.PurgeIntervalMinutes)
	require.Equal(t, 3, cfg.Solana.FailoverThreshold)
	require.Equal(t, 60, cfg.Pricing.CacheSeconds)
	require.NotEmpty(t, cfg.Pricing.Endpoint)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `server: {addr: ":8080"}`))
	require.ErrorContains(t, err, "db.dsn")

	_, err = Load(writeConfig(t, `
server: {addr: ":8080"}
db: {dsn: "postgres://localhost/solio"}
`))
	require.ErrorContains(t, err, "rpc_endpoints")

	_, err = Load(writeConfig(t, minimalConfig+`
fees:
  platform_fee_percent: "150"
`))
	require.ErrorContains(t, err, "platform_fee_percent")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLATFORM_FEE_PERCENT", "5")
	t.Setenv("SOLANA_RPC_ENDPOINTS", "https://a.example, https://b.example")
	t.Setenv("PAYOUT_MIN_NET_SOL", "0.01")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, "5", cfg.FeePercent.String())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Solana.RPCEndpoints)
	require.Equal(t, "0.01", cfg.MinNetSOL.String())
}
