package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
	"rpc": "https://api.mainnet-beta.solana.com",
	"key": "/etc/harvester/id.json",
	"mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"threshold": 1000,
	"interval": "5m",
	"confirm_timeout": 60,
	"test_amount": "0.002",
	"recipients": [
		{"label": "team", "address": "So11111111111111111111111111111111111111112", "percent": "97.5"},
		{"label": "ops", "address": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "percent": 2.5}
	]
}`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Interval.Duration)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout.Duration)
	assert.Equal(t, uint64(1000), cfg.Threshold)
	assert.Equal(t, uint16(100), cfg.SlippageBps)
	assert.True(t, cfg.Swap)
	assert.Equal(t, AssetNative, cfg.DistributeAsset)
	require.Len(t, cfg.Recipients, 2)
	assert.True(t, decimal.NewFromFloat(2.5).Equal(cfg.Recipients[1].Percent))
	assert.True(t, decimal.NewFromInt(100).Equal(cfg.PercentSum()))
	assert.True(t, decimal.RequireFromString("0.002").Equal(cfg.TestAmount))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	mint := solana.NewWallet().PublicKey()
	env := map[string]string{
		EnvRpcUrl:  "http://localhost:8899",
		EnvMint:    mint.String(),
		EnvKeypair: "secret",
	}
	require.NoError(t, cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}))
	assert.Equal(t, "http://localhost:8899", cfg.Rpc)
	assert.Equal(t, mint, cfg.Mint)
	assert.Equal(t, "secret", cfg.Key)

	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == EnvMint {
			return "not-a-key", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.SlippageBps = 20000
	cfg.DistributeAsset = "usdc"
	cfg.Recipients = []*Recipient{{Percent: decimal.NewFromInt(-1)}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"mint is required", "rpc or nodes", "key is required", "slippage_bps", "distribute_asset", "address is required", "percent -1"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RecipientsOnlyWhenDistributing(t *testing.T) {
	cfg := Default()
	cfg.Mint = solana.NewWallet().PublicKey()
	cfg.Rpc = "http://localhost:8899"
	cfg.Key = "k"
	cfg.Distribute = false
	assert.NoError(t, cfg.Validate())

	cfg.TestDistribution = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_amount")
	assert.Contains(t, err.Error(), "recipients are required")
}

func TestDuration_RoundTrip(t *testing.T) {
	out, err := json.Marshal(Duration{90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
	d := Duration{}
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}

func TestLoad_ExampleNeedsMintAndRecipients(t *testing.T) {
	_, err := Load("config.example.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Contains(t, err.Error(), "mint is required")
	assert.Contains(t, err.Error(), "recipients[0] address is required")
	assert.Contains(t, err.Error(), "recipients[1] address is required")
}
