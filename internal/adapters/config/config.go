package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Pipeline   PipelineConfig   `envconfig:"PIPELINE"`
	Cluster    ClusterConfig    `envconfig:"CLUSTER"`
	Calendar   CalendarConfig   `envconfig:"CALENDAR"`
	AI         AIConfig         `envconfig:"AI"`
	Signals    SignalsConfig    `envconfig:"SIGNALS"`
	Risk       RiskConfig       `envconfig:"RISK"`
	Portfolio  PortfolioConfig  `envconfig:"PORTFOLIO"`
	MarketData MarketDataConfig `envconfig:"MARKET_DATA"`
	Shadow     ShadowConfig     `envconfig:"SHADOW"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Metrics    MetricsConfig    `envconfig:"METRICS"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// PipelineConfig represents the news pipeline loop parameters
type PipelineConfig struct {
	PollInterval        time.Duration `envconfig:"PIPELINE_POLL_INTERVAL" default:"300s"`
	MaxArticlesPerCycle int           `envconfig:"PIPELINE_MAX_ARTICLES_PER_CYCLE" default:"10"`
	BatchSize           int           `envconfig:"PIPELINE_BATCH_SIZE" default:"5"`
	DedupWindow         time.Duration `envconfig:"PIPELINE_DEDUP_WINDOW" default:"30m"`
	ProposalTTL         time.Duration `envconfig:"PIPELINE_PROPOSAL_TTL" default:"24h"`
	ArticleRetention    time.Duration `envconfig:"PIPELINE_ARTICLE_RETENTION" default:"720h"`
	ShutdownTimeout     time.Duration `envconfig:"PIPELINE_SHUTDOWN_TIMEOUT" default:"30s"`
}

// ClusterConfig represents clustering engine parameters
type ClusterConfig struct {
	Window  time.Duration `envconfig:"CLUSTER_WINDOW" default:"60m"`
	MinSize int           `envconfig:"CLUSTER_MIN_SIZE" default:"2"`
	MaxAge  time.Duration `envconfig:"CLUSTER_MAX_AGE" default:"48h"`
}

// CalendarConfig represents the scheduled event calendar parameters
type CalendarConfig struct {
	EventWindow time.Duration `envconfig:"CALENDAR_EVENT_WINDOW" default:"30m"`
	HorizonDays int           `envconfig:"CALENDAR_HORIZON_DAYS" default:"90"`
}

// AIConfig represents LLM completion configuration
type AIConfig struct {
	Provider          string        `envconfig:"AI_PROVIDER" default:"openai"`
	Model             string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	MaxTokens         int           `envconfig:"AI_MAX_TOKENS" default:"1024"`
	Temperature       float64       `envconfig:"AI_TEMPERATURE" default:"0.3"`
	TopP              float64       `envconfig:"AI_TOP_P" default:"1.0"`
	Timeout           time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	RequestsPerMinute int           `envconfig:"AI_REQUESTS_PER_MINUTE" default:"60"`
	FallbackEnabled   bool          `envconfig:"AI_FALLBACK_ENABLED" default:"true"`
	OpenAIKey         string        `envconfig:"OPENAI_API_KEY" required:"false"`
	AnthropicKey      string        `envconfig:"ANTHROPIC_API_KEY" required:"false"`
	GeminiKey         string        `envconfig:"GEMINI_API_KEY" required:"false"`
	GLMKey            string        `envconfig:"GLM_API_KEY" required:"false"`
	LocalEndpoint     string        `envconfig:"AI_LOCAL_ENDPOINT" default:"http://localhost:11434"`
}

// SignalsConfig represents signal generation parameters
type SignalsConfig struct {
	BasePositionSize         float64 `envconfig:"SIGNALS_BASE_POSITION_SIZE" default:"0.05"`
	MaxPositionSize          float64 `envconfig:"SIGNALS_MAX_POSITION_SIZE" default:"0.10"`
	MinConfidence            float64 `envconfig:"SIGNALS_MIN_CONFIDENCE" default:"0.60"`
	ImpactThreshold          float64 `envconfig:"SIGNALS_IMPACT_THRESHOLD" default:"0.5"`
	SentimentThreshold       float64 `envconfig:"SIGNALS_SENTIMENT_THRESHOLD" default:"0.3"`
	RelevanceFloor           int     `envconfig:"SIGNALS_RELEVANCE_FLOOR" default:"70"`
	AutoExecuteEnabled       bool    `envconfig:"SIGNALS_AUTO_EXECUTE_ENABLED" default:"false"`
	AutoExecuteMinConfidence float64 `envconfig:"SIGNALS_AUTO_EXECUTE_MIN_CONFIDENCE" default:"0.85"`
}

// RiskConfig represents signal validator parameters
type RiskConfig struct {
	MinConfidence        float64 `envconfig:"RISK_MIN_CONFIDENCE" default:"0.60"`
	MaxPositionSize      float64 `envconfig:"RISK_MAX_POSITION_SIZE" default:"0.10"`
	DailyTradeLimit      int     `envconfig:"RISK_DAILY_TRADE_LIMIT" default:"20"`
	DailyLossLimitPct    float64 `envconfig:"RISK_DAILY_LOSS_LIMIT_PCT" default:"5.0"`
	MaxConsecutiveLosses int     `envconfig:"RISK_MAX_CONSECUTIVE_LOSSES" default:"5"`
	MarketHoursOnly      bool    `envconfig:"RISK_MARKET_HOURS_ONLY" default:"true"`
	MarketTimezone       string  `envconfig:"RISK_MARKET_TIMEZONE" default:"America/New_York"`
}

// PortfolioConfig describes the portfolio the decision core protects.
// The pipeline proposes trades but never executes them, so capital and
// allocation arrive from the operator rather than a broker API.
type PortfolioConfig struct {
	TotalCapital   float64 `envconfig:"PORTFOLIO_TOTAL_CAPITAL" default:"100000"`
	StockRatio     float64 `envconfig:"PORTFOLIO_STOCK_RATIO" default:"0.50"`
	CashRatio      float64 `envconfig:"PORTFOLIO_CASH_RATIO" default:"0.50"`
	InceptionDate  string  `envconfig:"PORTFOLIO_INCEPTION_DATE" required:"false"` // YYYY-MM-DD, enables bootstrap allocation skip
	IndexTicker    string  `envconfig:"PORTFOLIO_INDEX_TICKER" default:"SPY"`
	VIXTicker      string  `envconfig:"PORTFOLIO_VIX_TICKER" default:"^VIX"`
	DailyVolumeUSD float64 `envconfig:"PORTFOLIO_DAILY_VOLUME_USD" default:"0"`
	DrawdownPct    float64 `envconfig:"PORTFOLIO_DRAWDOWN_PCT" default:"0"` // peak-to-now, operator-fed like capital
}

// MarketDataConfig represents the market data client parameters
type MarketDataConfig struct {
	BaseURL         string        `envconfig:"MARKET_DATA_BASE_URL" default:"https://api.marketdata.test"`
	APIKey          string        `envconfig:"MARKET_DATA_API_KEY" required:"false"`
	Timeout         time.Duration `envconfig:"MARKET_DATA_TIMEOUT" default:"10s"`
	StreamEnabled   bool          `envconfig:"MARKET_DATA_STREAM_ENABLED" default:"false"`
	StreamURL       string        `envconfig:"MARKET_DATA_STREAM_URL" required:"false"`
	BreakerFailures uint32        `envconfig:"MARKET_DATA_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"MARKET_DATA_BREAKER_COOLDOWN" default:"60s"`
	CacheTTL        time.Duration `envconfig:"MARKET_DATA_CACHE_TTL" default:"5m"`
}

// ShadowConfig represents rejected-proposal tracking parameters
type ShadowConfig struct {
	TrackingDays   int    `envconfig:"SHADOW_TRACKING_DAYS" default:"7"`
	MaxAgeDays     int    `envconfig:"SHADOW_MAX_AGE_DAYS" default:"30"`
	MarkSchedule   string `envconfig:"SHADOW_MARK_SCHEDULE" default:"30 16 * * 1-5"`
	ReportSchedule string `envconfig:"SHADOW_REPORT_SCHEDULE" default:"0 9 * * 1"`
	ReportDays     int    `envconfig:"SHADOW_REPORT_DAYS" default:"7"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	Enabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"tradeshield"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// ClickHouseConfig represents the analytics warehouse connection
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Addr     string `envconfig:"CLICKHOUSE_ADDR" default:"localhost:9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"tradeshield"`
	Username string `envconfig:"CLICKHOUSE_USERNAME" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// RedisConfig represents the distributed lock and cache backend
type RedisConfig struct {
	Enabled   bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Addrs     []string      `envconfig:"REDIS_ADDRS" default:"localhost:6379"`
	LeaderKey string        `envconfig:"REDIS_LEADER_KEY" default:"tradeshield:pipeline:leader"`
	LeaderTTL time.Duration `envconfig:"REDIS_LEADER_TTL" default:"4m"`
}

// MetricsConfig represents the Prometheus exposition endpoint
type MetricsConfig struct {
	Enabled    bool   `envconfig:"METRICS_ENABLED" default:"true"`
	ListenAddr string `envconfig:"METRICS_LISTEN_ADDR" default:":9090"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:"logs/pipeline.log"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.MaxArticlesPerCycle < 1 {
		return fmt.Errorf("max_articles_per_cycle must be at least 1")
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.Cluster.MinSize < 2 {
		return fmt.Errorf("cluster_min_size must be at least 2")
	}

	switch c.AI.Provider {
	case "openai", "anthropic", "gemini", "glm", "local", "mock":
	default:
		return fmt.Errorf("unknown AI provider: %s", c.AI.Provider)
	}
	if c.AI.Provider != "mock" && c.AI.Provider != "local" && c.providerKey() == "" {
		return fmt.Errorf("API key for provider %s is required", c.AI.Provider)
	}

	if c.Signals.BasePositionSize <= 0 || c.Signals.BasePositionSize > 1 {
		return fmt.Errorf("base_position_size must be in (0, 1]")
	}
	if c.Signals.MaxPositionSize < c.Signals.BasePositionSize {
		return fmt.Errorf("max_position_size must be >= base_position_size")
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0, 1]")
	}

	if c.Risk.DailyTradeLimit < 1 {
		return fmt.Errorf("daily_trade_limit must be at least 1")
	}
	if c.Risk.DailyLossLimitPct <= 0 {
		return fmt.Errorf("daily_loss_limit_pct must be positive")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("max_consecutive_losses must be at least 1")
	}
	if _, err := time.LoadLocation(c.Risk.MarketTimezone); err != nil {
		return fmt.Errorf("invalid market timezone %s: %w", c.Risk.MarketTimezone, err)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram bot token and chat_id are required when telegram is enabled")
	}

	return nil
}

func (c *Config) providerKey() string {
	switch c.AI.Provider {
	case "openai":
		return c.AI.OpenAIKey
	case "anthropic":
		return c.AI.AnthropicKey
	case "gemini":
		return c.AI.GeminiKey
	case "glm":
		return c.AI.GLMKey
	}
	return ""
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s/%s",
		c.Username, c.Password, c.Addr, c.Database,
	)
}

// MarketLocation resolves the configured market timezone
func (c *RiskConfig) MarketLocation() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
