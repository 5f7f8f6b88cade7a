package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LotteryConfig describes one configured lottery game: how many numbers are
// drawn, the prize tiers and the draw schedule.
type LotteryConfig struct {
	Name          string            `yaml:"name"`
	MainCount     int               `yaml:"main_count"`
	MainRange     int               `yaml:"main_range"`
	ExtraCount    int               `yaml:"extra_count"`
	ExtraRange    int               `yaml:"extra_range"`
	TicketPrice   string            `yaml:"ticket_price"`
	BaseJackpot   string            `yaml:"base_jackpot"`
	PoolShare     string            `yaml:"pool_share"`
	DrawDays      []string          `yaml:"draw_days"` // e.g. ["tuesday", "friday"]
	DrawTime      string            `yaml:"draw_time"` // "20:00" UTC
	PrizeTiers    []PrizeTierConfig `yaml:"prize_tiers"`
}

// PrizeTierConfig is one prize bracket, matched by exact main/extra counts.
type PrizeTierConfig struct {
	Name         string `yaml:"name"`
	MainMatches  int    `yaml:"main_matches"`
	ExtraMatches int    `yaml:"extra_matches"`
	Kind         string `yaml:"kind"` // fixed | percentage | jackpot
	FixedAmount  string `yaml:"fixed_amount"`
	PoolPercent  string `yaml:"pool_percent"`
	Odds         string `yaml:"odds"`
}

// RNGConfig selects the randomness tier and its parameters. The tier is
// resolved once at construction, never per call.
type RNGConfig struct {
	Provider       string        `yaml:"provider"` // basic | crypto | external
	SecretKey      string        `yaml:"secret_key"`
	APIURL         string        `yaml:"api_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type VerificationConfig struct {
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type StorageConfig struct {
	Type string `yaml:"type"` // badger | memory
	Path string `yaml:"path"`
}

type Config struct {
	Engine EngineConfig `yaml:"engine"`
}

type EngineConfig struct {
	Lotteries    map[string]LotteryConfig `yaml:"lotteries"`
	RNG          RNGConfig                `yaml:"rng"`
	Verification VerificationConfig       `yaml:"verification"`
	NATS         NATSConfig               `yaml:"nats"`
	Storage      StorageConfig            `yaml:"storage"`
	// Workers bounds the ticket classification fan-out.
	Workers int `yaml:"workers"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// Set defaults
	if config.Engine.RNG.Provider == "" {
		config.Engine.RNG.Provider = "crypto"
	}
	if config.Engine.RNG.RequestTimeout == 0 {
		config.Engine.RNG.RequestTimeout = 10 * time.Second
	}
	if config.Engine.RNG.MaxRetries == 0 {
		config.Engine.RNG.MaxRetries = 3
	}
	if config.Engine.RNG.RetryDelay == 0 {
		config.Engine.RNG.RetryDelay = time.Second
	}
	if config.Engine.Workers == 0 {
		config.Engine.Workers = 8
	}
	if config.Engine.Storage.Type == "" {
		config.Engine.Storage.Type = "badger"
	}
	for name, lottery := range config.Engine.Lotteries {
		if lottery.PoolShare == "" {
			lottery.PoolShare = "0.5"
		}
		if lottery.DrawTime == "" {
			lottery.DrawTime = "20:00"
		}
		config.Engine.Lotteries[name] = lottery
	}

	return &config, nil
}

// Lottery returns the configuration for one lottery by id.
func (c *Config) Lottery(id string) (LotteryConfig, error) {
	lottery, ok := c.Engine.Lotteries[id]
	if !ok {
		return LotteryConfig{}, fmt.Errorf("lottery %q is not configured", id)
	}
	return lottery, nil
}
