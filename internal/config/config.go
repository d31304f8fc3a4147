package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"guardian-amm/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Logging   logging.Config `mapstructure:"logging"`
	Chain     ChainConfig    `mapstructure:"chain"`
	LLM       LLMConfig      `mapstructure:"llm"`
	Observer  ObserverConfig `mapstructure:"observer"`
	Filter    FilterConfig   `mapstructure:"filter"`
	Decider   DeciderConfig  `mapstructure:"decider"`
	Reasoner  ReasonerConfig `mapstructure:"reasoner"`
	Restore   RestoreConfig  `mapstructure:"restore"`
	Events    EventsConfig   `mapstructure:"events"`
	HTTP      HTTPConfig     `mapstructure:"http"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Alerting  AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig covers RPC access, the signer, and the frozen contract
// addresses spec.md §6 requires.
type ChainConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	SignerKey   string        `mapstructure:"signer_key"`
	WETH        string        `mapstructure:"contract_weth"`
	USDC        string        `mapstructure:"contract_usdc"`
	Oracle      string        `mapstructure:"contract_oracle"`
	AMM         string        `mapstructure:"contract_amm"`
	Vault       string        `mapstructure:"contract_vault"`
	GasCapWei   string        `mapstructure:"gas_cap_wei"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// LLMConfig covers Reasoner LLM transport.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	CallTimeout time.Duration `mapstructure:"call_timeout_sec"`
}

// ObserverConfig governs observation cadence.
type ObserverConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval_sec"`
}

// FilterConfig holds the Anomaly Filter's configurable thresholds.
type FilterConfig struct {
	PriceDeviationThresholdPct float64 `mapstructure:"price_deviation_threshold_pct"`
	ExtremeMoveThresholdPct    float64 `mapstructure:"extreme_move_threshold_pct"`
	LargeSwapWETH              float64 `mapstructure:"large_swap_weth"`
}

// DeciderConfig holds the Decider's confidence thresholds.
type DeciderConfig struct {
	PauseConfidenceThreshold            float64 `mapstructure:"pause_confidence_threshold"`
	BlockLiquidationConfidenceThreshold float64 `mapstructure:"block_liquidation_confidence_threshold"`
}

// ReasonerConfig holds the Reasoner cache's bound.
type ReasonerConfig struct {
	AnalyzedEventsCapacity int `mapstructure:"analyzed_events_capacity"`
}

// RestoreConfig governs the Restore Scheduler.
type RestoreConfig struct {
	DelaySec            time.Duration `mapstructure:"restore_delay_sec"`
	RepauseAfterRestore bool          `mapstructure:"repause_after_restore"`
}

// EventsConfig governs Event Store retention.
type EventsConfig struct {
	StoreCapacity int `mapstructure:"event_store_capacity"`
}

// HTTPConfig governs the dashboard-facing API server.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// StorageConfig encapsulates the optional PostgreSQL audit-log mirror.
// A blank DSN disables storage entirely — the core decision path never
// depends on it.
type StorageConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines operator-facing alert routing for committed
// defense actions.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GUARDIANAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "guardian-amm")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chain.call_timeout", "10s")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.call_timeout_sec", "10s")

	v.SetDefault("observer.poll_interval_sec", "2s")

	v.SetDefault("filter.price_deviation_threshold_pct", 5.0)
	v.SetDefault("filter.extreme_move_threshold_pct", 10.0)
	v.SetDefault("filter.large_swap_weth", 10.0)

	v.SetDefault("decider.pause_confidence_threshold", 0.75)
	v.SetDefault("decider.block_liquidation_confidence_threshold", 0.50)

	v.SetDefault("reasoner.analyzed_events_capacity", 1000)

	v.SetDefault("restore.restore_delay_sec", "5s")
	v.SetDefault("restore.repause_after_restore", false)

	v.SetDefault("events.event_store_capacity", 10000)

	v.SetDefault("http.listen_addr", ":8080")

	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "30m")
	v.SetDefault("storage.migrations_path", "migrations")
	v.SetDefault("storage.advisory_lock_key", int64(0x67416d6d)) // "gAmm"

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Required options with no sane default (spec.md §6: chain_rpc_url,
// signer_key, the five contract addresses, llm_api_key) are fatal
// configuration errors — exit code 1.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.SignerKey == "" {
		return fmt.Errorf("chain.signer_key is required")
	}
	for name, addr := range map[string]string{
		"contract_weth":   c.Chain.WETH,
		"contract_usdc":   c.Chain.USDC,
		"contract_oracle": c.Chain.Oracle,
		"contract_amm":    c.Chain.AMM,
		"contract_vault":  c.Chain.Vault,
	} {
		if addr == "" {
			return fmt.Errorf("chain.%s is required", name)
		}
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Observer.PollInterval < time.Second || c.Observer.PollInterval > 30*time.Second {
		return fmt.Errorf("observer.poll_interval_sec must be between 1s and 30s")
	}
	if c.Filter.PriceDeviationThresholdPct <= 0 {
		return fmt.Errorf("filter.price_deviation_threshold_pct must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram alerting is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram alerting is enabled")
		}
	}
	return nil
}
