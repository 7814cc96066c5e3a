package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Solana      SolanaConfig      `yaml:"solana"`
	PriceAPI    PriceAPIConfig    `yaml:"price_api"`
	Portfolio   PortfolioConfig   `yaml:"portfolio"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Gate        GateConfig        `yaml:"gate"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	JWT         JWTConfig         `yaml:"jwt"`
	Logger      LoggerConfig      `yaml:"logger"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
}

type SolanaConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	FastRelayURL   string        `yaml:"fast_relay_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	ResendInterval time.Duration `yaml:"resend_interval"`
	ResendMaxCount int           `yaml:"resend_max_count"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Commitment     string        `yaml:"commitment"`
}

type PriceAPIConfig struct {
	BaseURL          string `yaml:"base_url"`
	Timeout          int    `yaml:"timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBackoffBase int    `yaml:"retry_backoff_base"`
	APIKey           string `yaml:"api_key"`
}

type PortfolioConfig struct {
	BaseURL          string `yaml:"base_url"`
	Timeout          int    `yaml:"timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBackoffBase int    `yaml:"retry_backoff_base"`
	APIKey           string `yaml:"api_key"`
}

type EligibilityConfig struct {
	MaxWithdrawalsPerDay int    `yaml:"max_withdrawals_per_day"`
	MinWithdrawalUSD     string `yaml:"min_withdrawal_usd"`
}

type GateConfig struct {
	Permits        int           `yaml:"permits"`
	MaxAcquireWait time.Duration `yaml:"max_acquire_wait"`
}

type ReconcilerConfig struct {
	PendingGraceWindow time.Duration `yaml:"pending_grace_window"`
	ScanInterval       time.Duration `yaml:"scan_interval"`
	ScanBatchSize      int           `yaml:"scan_batch_size"`
	Workers            int           `yaml:"workers"`
}

type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Timeout    int    `yaml:"timeout"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Pretty     bool   `yaml:"pretty"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var config Config
	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Gate.Permits == 0 {
		c.Gate.Permits = 10
	}
	if c.Gate.MaxAcquireWait == 0 {
		c.Gate.MaxAcquireWait = 30 * time.Second
	}
	if c.Eligibility.MaxWithdrawalsPerDay == 0 {
		c.Eligibility.MaxWithdrawalsPerDay = 3
	}
	if c.Eligibility.MinWithdrawalUSD == "" {
		c.Eligibility.MinWithdrawalUSD = "1.00"
	}
	if c.Reconciler.PendingGraceWindow == 0 {
		c.Reconciler.PendingGraceWindow = 2 * time.Minute
	}
	if c.Reconciler.ScanInterval == 0 {
		c.Reconciler.ScanInterval = 30 * time.Second
	}
	if c.Reconciler.ScanBatchSize == 0 {
		c.Reconciler.ScanBatchSize = 100
	}
	if c.Reconciler.Workers == 0 {
		c.Reconciler.Workers = 4
	}
	if c.Solana.Timeout == 0 {
		c.Solana.Timeout = 30 * time.Second
	}
	if c.Solana.MaxRetries == 0 {
		c.Solana.MaxRetries = 3
	}
	if c.Solana.ResendInterval == 0 {
		c.Solana.ResendInterval = 10 * time.Second
	}
	if c.Solana.ResendMaxCount == 0 {
		c.Solana.ResendMaxCount = 3
	}
	if c.Solana.PollInterval == 0 {
		c.Solana.PollInterval = 2 * time.Second
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Redis.Queue == "" {
		c.Redis.Queue = "withdrawals:sync"
	}
}
