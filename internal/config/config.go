package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // scratch images ship without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"NewsCrawler/internal/domain"
)

const (
	defaultTimezone = "UTC"
	// ConfigPathEnv names the YAML file when no --config flag is given.
	ConfigPathEnv = "NEWSCRAWLER_CONFIG"

	envFileEnv         = "ENV_FILE"
	logLevelEnv        = "LOG_LEVEL"
	databaseDSNEnv     = "DATABASE_DSN"
	redisAddressEnv    = "REDIS_ADDRESS"
	redisPasswordEnv   = "REDIS_PASSWORD"
	llmAPIKeyEnv       = "LLM_API_KEY"
	llmModelEnv        = "LLM_MODEL"
	embeddingAPIKeyEnv = "EMBEDDING_API_KEY"
	qdrantAPIKeyEnv    = "QDRANT_API_KEY"
	mongoURIEnv        = "MONGO_URI"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	slackWebhookEnv    = "SLACK_WEBHOOK_URL"

	defaultRateLimitSeconds = 1
	defaultTimeoutSeconds   = 30
	defaultMaxArticles      = 50
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Health        HealthConfig       `yaml:"health"`
	Dedup         DedupConfig        `yaml:"dedup"`
	State         StateConfig        `yaml:"state"`
	Redis         RedisConfig        `yaml:"redis"`
	Database      DatabaseConfig     `yaml:"database"`
	Cleaner       CleanerConfig      `yaml:"cleaner"`
	Embedder      EmbedderConfig     `yaml:"embedder"`
	Qdrant        QdrantConfig       `yaml:"qdrant"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SchedulerConfig defines when cycles run. CronExpression wins over Interval when set.
type SchedulerConfig struct {
	Interval       time.Duration  `yaml:"interval"`
	CronExpression string         `yaml:"cron_expression"`
	Timezone       string         `yaml:"timezone"`
	CycleBudget    time.Duration  `yaml:"cycle_budget"`
	Parallelism    int            `yaml:"parallelism"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// HealthConfig holds the source health thresholds.
type HealthConfig struct {
	DegradedAfter int           `yaml:"degraded_after"`
	DisableAfter  int           `yaml:"disable_after"`
	Cooldown      time.Duration `yaml:"cooldown"`
}

// DedupConfig selects the duplicate index backend ("memory" or "redis").
type DedupConfig struct {
	Backend   string        `yaml:"backend"`
	Retention time.Duration `yaml:"retention"`
	ClaimTTL  time.Duration `yaml:"claim_ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// StateConfig points at the JSON snapshot used when no database holds the state.
type StateConfig struct {
	File string `yaml:"file"`
}

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Migrate      bool   `yaml:"migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CleanerConfig defines how to contact the chat completion API used for cleaning.
type CleanerConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"api_key"`
	SystemPrompt     string        `yaml:"system_prompt"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	MinContentLength int           `yaml:"min_content_length"`
	MaxContentLength int           `yaml:"max_content_length"`
	// RequestsPerMinute caps chat completion calls, retries included; zero is unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// EmbedderConfig describes the embedding service.
type EmbedderConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// QdrantConfig describes the vector store.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

// StorageConfig groups the write-side settings.
type StorageConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig prunes stored articles crawled more than MaxAge ago, at most once per
// Interval. A zero MaxAge keeps everything.
type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// MongoConfig enables the raw archive when URI is set.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken     string `yaml:"bot_token"`
	ChatID       string `yaml:"chat_id"`
	NotifyAlways bool   `yaml:"notify_always"`
}

// SlackConfig holds the incoming webhook.
type SlackConfig struct {
	WebhookURL   string `yaml:"webhook_url"`
	NotifyAlways bool   `yaml:"notify_always"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// ExtractionConfig tunes the HTTP fetcher shared by discovery and extraction.
type ExtractionConfig struct {
	UserAgent     string `yaml:"user_agent"`
	RespectRobots bool   `yaml:"respect_robots"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// SourceConfig is the YAML shape of one source.
type SourceConfig struct {
	Name             string            `yaml:"name"`
	Kind             string            `yaml:"kind"`
	Endpoint         string            `yaml:"endpoint"`
	RateLimitSeconds float64           `yaml:"rate_limit_seconds"`
	MaxArticles      int               `yaml:"max_articles"`
	TimeoutSeconds   float64           `yaml:"timeout_seconds"`
	Category         string            `yaml:"category"`
	Selectors        SelectorConfig    `yaml:"selectors"`
	Headers          map[string]string `yaml:"headers"`
	Enabled          *bool             `yaml:"enabled"`
}

// SelectorConfig holds the optional CSS selectors of a scraped source.
type SelectorConfig struct {
	Article string `yaml:"article"`
	Link    string `yaml:"link"`
	Title   string `yaml:"title"`
	Date    string `yaml:"date"`
	Content string `yaml:"content"`
}

// IsEnabled treats a missing flag as enabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ToDomain converts the YAML shape, filling defaults for omitted numbers.
func (s SourceConfig) ToDomain() (domain.SourceConfig, error) {
	kind, err := domain.ParseSourceKind(s.Kind)
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("source %s: %w", s.Name, err)
	}

	rate := s.RateLimitSeconds
	if rate == 0 {
		rate = defaultRateLimitSeconds
	}
	timeout := s.TimeoutSeconds
	if timeout == 0 {
		timeout = defaultTimeoutSeconds
	}
	maxArticles := s.MaxArticles
	if maxArticles == 0 {
		maxArticles = defaultMaxArticles
	}

	src := domain.SourceConfig{
		Name:        strings.TrimSpace(s.Name),
		Kind:        kind,
		Endpoint:    strings.TrimSpace(s.Endpoint),
		RateLimit:   time.Duration(rate * float64(time.Second)),
		MaxArticles: maxArticles,
		Timeout:     time.Duration(timeout * float64(time.Second)),
		Category:    s.Category,
		Selectors: domain.Selectors{
			Article: s.Selectors.Article,
			Link:    s.Selectors.Link,
			Title:   s.Selectors.Title,
			Date:    s.Selectors.Date,
			Content: s.Selectors.Content,
		},
		Headers: s.Headers,
	}
	return src, src.Validate()
}

// DomainSources converts and validates the enabled sources, keeping config order.
func (c Config) DomainSources() ([]domain.SourceConfig, error) {
	out := make([]domain.SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.IsEnabled() {
			continue
		}
		src, err := s.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := domain.ValidateSources(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.DomainSources(); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.CronExpression == "" {
		errs = append(errs, errors.New("scheduler: interval or cron_expression is required"))
	}
	if c.Scheduler.Parallelism < 0 {
		errs = append(errs, errors.New("scheduler: parallelism must not be negative"))
	}
	if c.Health.DegradedAfter < 1 {
		errs = append(errs, errors.New("health: degraded_after must be at least 1"))
	}
	if c.Storage.Retention.MaxAge < 0 {
		errs = append(errs, errors.New("storage: retention max_age must not be negative"))
	}
	if c.Storage.Retention.MaxAge > 0 && c.Storage.Retention.Interval <= 0 {
		errs = append(errs, errors.New("storage: retention interval must be positive"))
	}
	if c.Cleaner.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("cleaner: requests_per_minute must not be negative"))
	}
	if c.Health.DisableAfter < 0 {
		errs = append(errs, errors.New("health: disable_after must not be negative"))
	}
	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("dedup: redis backend needs redis.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("dedup: unknown backend %q", c.Dedup.Backend))
	}
	return errors.Join(errs...)
}

// Load reads .env files, the YAML file at path (if any), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadSources re-reads only the source list of the YAML file at path.
func LoadSources(path string) ([]domain.SourceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var partial struct {
		Sources []SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &partial); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Config{Sources: partial.Sources}.DomainSources()
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env. Missing files are fine.
func loadEnvFiles() error {
	if envFile := os.Getenv(envFileEnv); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		logLevelEnv:        &c.Logging.Level,
		databaseDSNEnv:     &c.Database.DSN,
		redisAddressEnv:    &c.Redis.Address,
		redisPasswordEnv:   &c.Redis.Password,
		llmAPIKeyEnv:       &c.Cleaner.APIKey,
		llmModelEnv:        &c.Cleaner.Model,
		embeddingAPIKeyEnv: &c.Embedder.APIKey,
		qdrantAPIKeyEnv:    &c.Qdrant.APIKey,
		mongoURIEnv:        &c.Storage.Mongo.URI,
		telegramTokenEnv:   &c.Notifications.Telegram.BotToken,
		telegramChatIDEnv:  &c.Notifications.Telegram.ChatID,
		slackWebhookEnv:    &c.Notifications.Slack.WebhookURL,
	}
	for env, target := range overrides {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{
			Interval:    time.Hour,
			Timezone:    defaultTimezone,
			CycleBudget: 45 * time.Minute,
			location:    tz,
		},
		Health: HealthConfig{DegradedAfter: 3, DisableAfter: 2, Cooldown: 6 * time.Hour},
		Dedup:  DedupConfig{Backend: "memory", Retention: 24 * time.Hour, ClaimTTL: 30 * time.Minute},
		State:  StateConfig{File: "newscrawler-state.json"},
		Cleaner: CleanerConfig{
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			Model:            "gpt-4o-mini",
			SystemPrompt:     "You clean scraped news articles. Remove navigation, ads and boilerplate; keep the article text unchanged otherwise.",
			Timeout:          60 * time.Second,
			MaxAttempts:      3,
			InitialDelay:     2 * time.Second,
			MinContentLength: 50,
			MaxContentLength: 12000,
		},
		Embedder: EmbedderConfig{
			Endpoint: "https://api.openai.com/v1/embeddings",
			Model:    "text-embedding-3-small",
			Timeout:  30 * time.Second,
		},
		Qdrant:  QdrantConfig{Collection: "news_articles", VectorSize: 1536},
		Storage: StorageConfig{
			Timeout:   30 * time.Second,
			Mongo:     MongoConfig{Database: "newscrawler", Collection: "articles"},
			Retention: RetentionConfig{MaxAge: 24 * time.Hour, Interval: 24 * time.Hour},
		},
		HTTP:    HTTPConfig{Address: ":8080"},
		Extraction: ExtractionConfig{
			UserAgent:     "NewsCrawler/1.0 (+https://github.com/newscrawler)",
			RespectRobots: true,
			MaxBodyBytes:  5 << 20,
		},
	}
}
