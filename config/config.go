package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Alloc seeds a ledger balance on first boot.
type Alloc struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

type Config struct {
	RPCAddress     string  `toml:"RPCAddress"`
	GatewayAddress string  `toml:"GatewayAddress"`
	MetricsAddress string  `toml:"MetricsAddress"`
	DataDir        string  `toml:"DataDir"`
	NetworkName    string  `toml:"NetworkName"`
	Owner          string  `toml:"Owner"`
	FeeCollector   string  `toml:"FeeCollector"`
	FeeBps         uint32  `toml:"FeeBps"`
	Alloc          []Alloc `toml:"Alloc"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.GatewayAddress) == "" {
		cfg.GatewayAddress = ":8660"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9091"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./edugrants-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "edugrants-local"
	}
	if cfg.Alloc == nil {
		cfg.Alloc = []Alloc{}
	}
}

// Validate checks every address-valued field. Owner and FeeCollector may be
// empty (fee administration and fee routing then stay disabled), but a
// present value must be a well-formed hex address.
func (c *Config) Validate() error {
	if _, err := ParseAddress(c.Owner); err != nil {
		return fmt.Errorf("config: invalid Owner: %w", err)
	}
	if _, err := ParseAddress(c.FeeCollector); err != nil {
		return fmt.Errorf("config: invalid FeeCollector: %w", err)
	}
	for i, alloc := range c.Alloc {
		if strings.TrimSpace(alloc.Address) == "" {
			return fmt.Errorf("config: alloc %d missing address", i)
		}
		if _, _, err := alloc.Entry(); err != nil {
			return fmt.Errorf("config: alloc %d: %w", i, err)
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed hex address. An empty input yields the
// zero address without error.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return addr, nil
	}
	if !common.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("malformed address %q", value)
	}
	copy(addr[:], common.HexToAddress(trimmed).Bytes())
	return addr, nil
}

// OwnerAddress returns the parsed fee administration owner.
func (c *Config) OwnerAddress() ([20]byte, error) { return ParseAddress(c.Owner) }

// FeeCollectorAddress returns the parsed fee recipient.
func (c *Config) FeeCollectorAddress() ([20]byte, error) { return ParseAddress(c.FeeCollector) }

// Entry resolves the alloc into an address and a non-negative balance.
func (a Alloc) Entry() ([20]byte, *big.Int, error) {
	addr, err := ParseAddress(a.Address)
	if err != nil {
		return addr, nil, err
	}
	balance, ok := new(big.Int).SetString(strings.TrimSpace(a.Balance), 10)
	if !ok {
		return addr, nil, fmt.Errorf("malformed balance %q", a.Balance)
	}
	if balance.Sign() < 0 {
		return addr, nil, fmt.Errorf("balance must be non-negative")
	}
	return addr, balance, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
