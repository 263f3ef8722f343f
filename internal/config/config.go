package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/ledger"
	"github.com/rustyeddy/commons/pkg/ticket"
)

// Config is a complete deployment: the ledger, one auction, the DAO, one
// ticketed event and where the event journal goes.
type Config struct {
	Ledger  LedgerConfig  `json:"ledger" yaml:"ledger" toml:"ledger"`
	Auction AuctionConfig `json:"auction" yaml:"auction" toml:"auction"`
	DAO     DAOConfig     `json:"dao" yaml:"dao" toml:"dao"`
	Event   EventConfig   `json:"event" yaml:"event" toml:"event"`
	Journal JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
}

type LedgerConfig struct {
	Owner  string               `json:"owner" yaml:"owner" toml:"owner"`
	Points ledger.PointSchedule `json:"points" yaml:"points" toml:"points"`
}

// AuctionConfig describes the auction for a single rentable item.
type AuctionConfig struct {
	ItemID       uint64 `json:"item_id" yaml:"item_id" toml:"item_id"`
	Owner        string `json:"owner" yaml:"owner" toml:"owner"`
	MinIncrement uint64 `json:"min_increment" yaml:"min_increment" toml:"min_increment"` // wei
	Duration     string `json:"duration" yaml:"duration" toml:"duration"`
}

// ParseDuration converts the duration string to time.Duration. Empty means
// the auction never expires on its own.
func (a AuctionConfig) ParseDuration() (time.Duration, error) {
	if a.Duration == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Duration)
}

type DAOConfig struct {
	Owner  string `json:"owner" yaml:"owner" toml:"owner"`
	Quorum uint64 `json:"quorum" yaml:"quorum" toml:"quorum"`
}

type EventConfig struct {
	Name      string       `json:"name" yaml:"name" toml:"name"`
	Venue     string       `json:"venue" yaml:"venue" toml:"venue"`
	Organizer string       `json:"organizer" yaml:"organizer" toml:"organizer"`
	Tiers     []TierConfig `json:"tiers" yaml:"tiers" toml:"tiers"`
}

type TierConfig struct {
	Name   string `json:"name" yaml:"name" toml:"name"`
	Supply uint64 `json:"supply" yaml:"supply" toml:"supply"`
	Price  string `json:"price" yaml:"price" toml:"price"` // ether, e.g. "0.5"
}

// TicketConfig converts the event section into the ticket engine's config.
func (e EventConfig) TicketConfig() (ticket.Config, error) {
	cfg := ticket.Config{
		Name:      e.Name,
		Venue:     e.Venue,
		Organizer: chain.Address(e.Organizer),
	}
	for _, t := range e.Tiers {
		price, err := chain.ParseEther(t.Price)
		if err != nil {
			return ticket.Config{}, fmt.Errorf("tier %s price: %w", t.Name, err)
		}
		cfg.Tiers = append(cfg.Tiers, ticket.Tier{Name: t.Name, Supply: t.Supply, Price: price})
	}
	return cfg, nil
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"` // "memory", "csv" or "sqlite"
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

// Load returns the configuration at path, or the defaults when path is
// empty, with environment overrides applied and validated.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (TOML, JSON or YAML based on
// extension), applies environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	default:
		// Try YAML first, fall back to JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jerr := json.Unmarshal(data, cfg); jerr != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// overrides are the settings an operator may change per environment. Zero
// values mean the variable is unset.
type overrides struct {
	JournalType     string        `env:"COMMONS_JOURNAL_TYPE"`
	JournalPath     string        `env:"COMMONS_JOURNAL_PATH"`
	DAOQuorum       uint64        `env:"COMMONS_DAO_QUORUM"`
	AuctionDuration time.Duration `env:"COMMONS_AUCTION_DURATION"`
}

// ApplyEnv overrides fields from COMMONS_* environment variables. Unset
// variables leave the loaded values alone.
func (c *Config) ApplyEnv() error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.JournalType != "" {
		c.Journal.Type = o.JournalType
	}
	if o.JournalPath != "" {
		c.Journal.Path = o.JournalPath
	}
	if o.DAOQuorum != 0 {
		c.DAO.Quorum = o.DAOQuorum
	}
	if o.AuctionDuration != 0 {
		c.Auction.Duration = o.AuctionDuration.String()
	}
	return nil
}

// SaveToFile saves configuration to a file (TOML, YAML or JSON based on
// extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch ext(path) {
	case ".toml":
		data, err = toml.Marshal(c)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Ledger.Owner == "" {
		return fmt.Errorf("ledger.owner is required")
	}
	if c.Auction.Owner == "" {
		return fmt.Errorf("auction.owner is required")
	}
	if c.Auction.ItemID == 0 {
		return fmt.Errorf("auction.item_id must be positive")
	}
	if c.Auction.MinIncrement == 0 {
		return fmt.Errorf("auction.min_increment must be positive")
	}
	d, err := c.Auction.ParseDuration()
	if err != nil {
		return fmt.Errorf("auction.duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("auction.duration must not be negative")
	}
	if c.DAO.Owner == "" {
		return fmt.Errorf("dao.owner is required")
	}
	if c.DAO.Quorum == 0 {
		return fmt.Errorf("dao.quorum must be positive")
	}
	if c.Event.Organizer == "" {
		return fmt.Errorf("event.organizer is required")
	}
	if len(c.Event.Tiers) == 0 {
		return fmt.Errorf("event.tiers needs at least one tier")
	}
	for _, t := range c.Event.Tiers {
		if t.Name == "" {
			return fmt.Errorf("event tier name is required")
		}
		if t.Supply == 0 {
			return fmt.Errorf("event tier %s supply must be positive", t.Name)
		}
		if _, err := chain.ParseEther(t.Price); err != nil {
			return fmt.Errorf("event tier %s price: %w", t.Name, err)
		}
	}
	switch c.Journal.Type {
	case "memory":
	case "csv", "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path required for %s type", c.Journal.Type)
		}
	default:
		return fmt.Errorf("journal.type must be 'memory', 'csv' or 'sqlite'")
	}
	return nil
}

// Default mirrors the original deployment: points 3/2/1, a three day
// auction for item 1 and the NUS Presentation event.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Owner:  "deployer",
			Points: ledger.DefaultSchedule(),
		},
		Auction: AuctionConfig{
			ItemID:       1,
			Owner:        "deployer",
			MinIncrement: 5,
			Duration:     "72h",
		},
		DAO: DAOConfig{
			Owner:  "deployer",
			Quorum: 2,
		},
		Event: EventConfig{
			Name:      "NUS Presentation",
			Venue:     "NUS",
			Organizer: "deployer",
			Tiers: []TierConfig{
				{Name: "VIP", Supply: 2, Price: "1"},
				{Name: "Normal", Supply: 1, Price: "1"},
			},
		},
		Journal: JournalConfig{
			Type: "memory",
		},
	}
}
