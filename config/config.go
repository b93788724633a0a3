package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nhbmarket/crypto"
	"nhbmarket/native/market"
)

// Config holds the market parameters and the location of persisted state.
// Addresses are bech32 strings with the nhb prefix.
type Config struct {
	DataDir               string `toml:"DataDir"`
	Custody               string `toml:"Custody"`
	Treasury              string `toml:"Treasury"`
	FeeAuthority          string `toml:"FeeAuthority"`
	FeePercentage         uint32 `toml:"FeePercentage"`
	EscrowDurationSeconds int64  `toml:"EscrowDurationSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if strings.TrimSpace(cfg.Custody) == "" {
		cfg.Custody = crypto.FormatAddress(crypto.NHBPrefix, crypto.ModuleAddress(market.CustodyModuleName))
	}
	if cfg.EscrowDurationSeconds == 0 {
		cfg.EscrowDurationSeconds = market.DefaultEscrowDuration
	}
	if _, err := cfg.MarketParams(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// MarketParams converts the configuration into validated engine parameters.
func (c *Config) MarketParams() (market.Params, error) {
	var (
		params market.Params
		err    error
	)
	if params.Custody, err = crypto.ParseAddress(crypto.NHBPrefix, c.Custody); err != nil {
		return market.Params{}, fmt.Errorf("custody: %w", err)
	}
	if params.Treasury, err = crypto.ParseAddress(crypto.NHBPrefix, c.Treasury); err != nil {
		return market.Params{}, fmt.Errorf("treasury: %w", err)
	}
	if params.FeeAuthority, err = crypto.ParseAddress(crypto.NHBPrefix, c.FeeAuthority); err != nil {
		return market.Params{}, fmt.Errorf("fee authority: %w", err)
	}
	params.DefaultFeePercentage = c.FeePercentage
	params.EscrowDuration = c.EscrowDurationSeconds
	if err := params.Validate(); err != nil {
		return market.Params{}, err
	}
	return params, nil
}

func generatedAddress() (string, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

// createDefault creates and saves a default configuration file. Treasury and
// fee authority receive freshly generated addresses.
func createDefault(path string) (*Config, error) {
	treasury, err := generatedAddress()
	if err != nil {
		return nil, err
	}
	authority, err := generatedAddress()
	if err != nil {
		return nil, err
	}
	defaults := market.DefaultParams()
	cfg := &Config{
		DataDir:               "./market-data",
		Custody:               crypto.FormatAddress(crypto.NHBPrefix, defaults.Custody),
		Treasury:              treasury,
		FeeAuthority:          authority,
		FeePercentage:         defaults.DefaultFeePercentage,
		EscrowDurationSeconds: defaults.EscrowDuration,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
