package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	EnvRpcUrl  = "HARVEST_RPC_URL"
	EnvMint    = "HARVEST_MINT"
	EnvKeypair = "HARVEST_KEYPAIR"
	EnvNotify  = "HARVEST_NOTIFY_URL"
	EnvJupiter = "HARVEST_JUPITER_URL"
	EnvListen  = "HARVEST_LISTEN"
)

const (
	AssetNative = "native"
	AssetToken  = "token"
)

var (
	DefaultConfigFile = "./config/config.json"
	LogPath           = "./logs/"
)

type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "10m" style strings or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = v
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", data)
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

type Node struct {
	Rpc    string `json:"rpc"`
	Usable bool   `json:"usable"`
}

type Recipient struct {
	Label   string           `json:"label"`
	Address solana.PublicKey `json:"address"`
	Percent decimal.Decimal  `json:"percent"`
}

type Log struct {
	Dir     string `json:"dir"`
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

type Config struct {
	Nodes      []*Node `json:"nodes"`
	Rpc        string  `json:"rpc"`
	JupiterUrl string  `json:"jupiter_url"`
	Key        string  `json:"key"`

	Mint      solana.PublicKey `json:"mint"`
	Threshold uint64           `json:"threshold"`
	Interval  Duration         `json:"interval"`

	ConfirmTimeout      Duration `json:"confirm_timeout"`
	SlippageBps         uint16   `json:"slippage_bps"`
	PriorityFeeLamports uint64   `json:"priority_fee_lamports"`
	MaxHarvestAccounts  int      `json:"max_harvest_accounts"`

	CheckOnly        bool            `json:"check_only"`
	TestDistribution bool            `json:"test_distribution"`
	TestAmount       decimal.Decimal `json:"test_amount"`
	Swap             bool            `json:"swap"`
	Distribute       bool            `json:"distribute"`
	DistributeAsset  string          `json:"distribute_asset"`
	SweepCustody     bool            `json:"sweep_custody"`
	// MinBalance in SOL; cycles warn while the wallet holds less.
	MinBalance decimal.Decimal `json:"min_balance"`

	Recipients []*Recipient `json:"recipients"`

	Listen    string `json:"listen"`
	NotifyUrl string `json:"notify_url"`
	Log       Log    `json:"log"`
}

func Default() *Config {
	return &Config{
		Interval:           Duration{10 * time.Minute},
		ConfirmTimeout:     Duration{90 * time.Second},
		SlippageBps:        100,
		MaxHarvestAccounts: 24,
		Swap:               true,
		Distribute:         true,
		DistributeAsset:    AssetNative,
		Log: Log{
			Dir:     LogPath,
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads .env (when present), the JSON file at path and the
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the HARVEST_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRpcUrl); ok && v != "" {
		c.Rpc = v
	}
	if v, ok := lookup(EnvMint); ok && v != "" {
		mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMint, err)
		}
		c.Mint = mint
	}
	if v, ok := lookup(EnvKeypair); ok && v != "" {
		c.Key = v
	}
	if v, ok := lookup(EnvNotify); ok {
		c.NotifyUrl = v
	}
	if v, ok := lookup(EnvJupiter); ok && v != "" {
		c.JupiterUrl = v
	}
	if v, ok := lookup(EnvListen); ok {
		c.Listen = v
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Errorf(format, args...))
	}
	if c.Mint.IsZero() {
		add("mint is required")
	}
	if c.Rpc == "" && len(c.Nodes) == 0 {
		add("rpc or nodes is required")
	}
	if c.Key == "" {
		add("key is required")
	}
	if c.Interval.Duration <= 0 {
		add("interval must be positive")
	}
	if c.ConfirmTimeout.Duration < 0 {
		add("confirm_timeout must not be negative")
	}
	if c.SlippageBps > 10000 {
		add("slippage_bps %d exceeds 10000", c.SlippageBps)
	}
	if c.MaxHarvestAccounts < 0 || c.MaxHarvestAccounts > 255 {
		add("max_harvest_accounts %d must be within 0..255", c.MaxHarvestAccounts)
	}
	if c.MinBalance.Sign() < 0 {
		add("min_balance must not be negative")
	}
	if c.DistributeAsset != AssetNative && c.DistributeAsset != AssetToken {
		add("distribute_asset %q must be %q or %q", c.DistributeAsset, AssetNative, AssetToken)
	}
	if c.TestDistribution && c.TestAmount.Sign() <= 0 {
		add("test_amount must be positive when test_distribution is enabled")
	}
	if c.Distribute || c.TestDistribution {
		if len(c.Recipients) == 0 {
			add("recipients are required when distribution is enabled")
		}
		for i, r := range c.Recipients {
			if r == nil {
				add("recipients[%d] is empty", i)
				continue
			}
			if r.Address.IsZero() {
				add("recipients[%d] address is required", i)
			}
			if r.Percent.Sign() <= 0 || r.Percent.GreaterThan(decimal.NewFromInt(100)) {
				add("recipients[%d] percent %s must be within (0, 100]", i, r.Percent)
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Errorf("invalid config (%d problems): %s", len(problems), strings.Join(msgs, "; "))
}

// PercentSum is the sum of all recipient percentages.
func (c *Config) PercentSum() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range c.Recipients {
		if r != nil {
			sum = sum.Add(r.Percent)
		}
	}
	return sum
}
