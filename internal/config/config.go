package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Solana struct {
		RPCEndpoints      []string `yaml:"rpc_endpoints"`
		WSEndpoint        string   `yaml:"ws_endpoint"`
		PlatformWallet    string   `yaml:"platform_wallet"`
		PlatformSecret    string   `yaml:"platform_secret"`
		FailoverThreshold int      `yaml:"failover_threshold"`
	} `yaml:"solana"`
	Fees struct {
		PlatformFeePercent string `yaml:"platform_fee_percent"`
	} `yaml:"fees"`
	Auth struct {
		NonceTTLMinutes int `yaml:"nonce_ttl_minutes"`
	} `yaml:"auth"`
	Verify struct {
		MaxPolls            int `yaml:"max_polls"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"verify"`
	Payouts struct {
		SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
		PurgeIntervalMinutes int    `yaml:"purge_interval_minutes"`
		MinNetSOL            string `yaml:"min_net_sol"`
	} `yaml:"payouts"`
	Pricing struct {
		Endpoint     string `yaml:"endpoint"`
		CacheSeconds int    `yaml:"cache_seconds"`
	} `yaml:"pricing"`

	// Parsed in Load from the string fields above.
	FeePercent decimal.Decimal `yaml:"-"`
	MinNetSOL  decimal.Decimal `yaml:"-"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if len(cfg.Solana.RPCEndpoints) == 0 {
		return nil, errors.New("solana.rpc_endpoints is required")
	}
	if cfg.Solana.PlatformWallet == "" {
		return nil, errors.New("solana.platform_wallet is required")
	}

	cfg.FeePercent, err = decimal.NewFromString(cfg.Fees.PlatformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("fees.platform_fee_percent: %w", err)
	}
	if cfg.FeePercent.IsNegative() || cfg.FeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.New("fees.platform_fee_percent must be within [0, 100]")
	}
	cfg.MinNetSOL, err = decimal.NewFromString(cfg.Payouts.MinNetSOL)
	if err != nil {
		return nil, fmt.Errorf("payouts.min_net_sol: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Fees.PlatformFeePercent == "" {
		cfg.Fees.PlatformFeePercent = "2.5"
	}
	if cfg.Auth.NonceTTLMinutes <= 0 {
		cfg.Auth.NonceTTLMinutes = 10
	}
	if cfg.Verify.MaxPolls <= 0 {
		cfg.Verify.MaxPolls = 10
	}
	if cfg.Verify.PollIntervalSeconds <= 0 {
		cfg.Verify.PollIntervalSeconds = 2
	}
	if cfg.Payouts.SweepIntervalMinutes <= 0 {
		cfg.Payouts.SweepIntervalMinutes = 5
	}
	if cfg.Payouts.PurgeIntervalMinutes <= 0 {
		cfg.Payouts.PurgeIntervalMinutes = 15
	}
	if cfg.Payouts.MinNetSOL == "" {
		cfg.Payouts.MinNetSOL = "0.001"
	}
	if cfg.Pricing.Endpoint == "" {
		cfg.Pricing.Endpoint = "https://api.coingecko.com/api/v3/simple/price"
	}
	if cfg.Pricing.CacheSeconds <= 0 {
		cfg.Pricing.CacheSeconds = 60
	}
	if cfg.Solana.FailoverThreshold <= 0 {
		cfg.Solana.FailoverThreshold = 3
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("SOLANA_RPC_ENDPOINTS"); v != "" {
		cfg.Solana.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("SOLANA_WS_ENDPOINT"); v != "" {
		cfg.Solana.WSEndpoint = v
	}
	if v := os.Getenv("PLATFORM_WALLET_ADDRESS"); v != "" {
		cfg.Solana.PlatformWallet = v
	}
	if v := os.Getenv("PLATFORM_WALLET_SECRET"); v != "" {
		cfg.Solana.PlatformSecret = v
	}
	if v := os.Getenv("PLATFORM_FEE_PERCENT"); v != "" {
		cfg.Fees.PlatformFeePercent = v
	}
	if v := os.Getenv("WALLET_NONCE_TTL_MINUTES"); v != "" {
		cfg.Auth.NonceTTLMinutes = atoiOr(cfg.Auth.NonceTTLMinutes, v)
	}
	if v := os.Getenv("VERIFY_MAX_POLLS"); v != "" {
		cfg.Verify.MaxPolls = atoiOr(cfg.Verify.MaxPolls, v)
	}
	if v := os.Getenv("VERIFY_POLL_INTERVAL_SECONDS"); v != "" {
		cfg.Verify.PollIntervalSeconds = atoiOr(cfg.Verify.PollIntervalSeconds, v)
	}
	if v := os.Getenv("PAYOUT_SWEEP_INTERVAL_MINUTES"); v != "" {
		cfg.Payouts.SweepIntervalMinutes = atoiOr(cfg.Payouts.SweepIntervalMinutes, v)
	}
	if v := os.Getenv("PAYOUT_MIN_NET_SOL"); v != "" {
		cfg.Payouts.MinNetSOL = v
	}
	if v := os.Getenv("PRICE_ENDPOINT"); v != "" {
		cfg.Pricing.Endpoint = v
	}
	if v := os.Getenv("PRICE_CACHE_SECONDS"); v != "" {
		cfg.Pricing.CacheSeconds = atoiOr(cfg.Pricing.CacheSeconds, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
