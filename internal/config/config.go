package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Webhook  WebhookConfig
	Sweep    SweepConfig
	Breaker  BreakerConfig
	Velocity VelocityConfig
	Alert    AlertConfig
	Cache    CacheConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// WebhookConfig covers payment-gateway intake: per-provider shared secrets,
// the replay-protection window, and the retry budget for transient failures.
type WebhookConfig struct {
	// Secrets maps provider name -> shared HMAC secret.
	// Env format: WEBHOOK_SECRETS="razorpay=abc,stripe=def"
	Secrets      map[string]string
	ReplayWindow time.Duration
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
	// Epsilon is the tolerated projection drift in coins. Balances are
	// integral, so anything other than 0 is a deliberate operator choice.
	Epsilon int64
}

type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

type VelocityConfig struct {
	DebitLimit int
	Window     time.Duration
}

type AlertConfig struct {
	CoalesceWindow     time.Duration
	HighValueThreshold int64
	TelegramBotToken   string
	TelegramChatID     string
}

type CacheConfig struct {
	BalanceTTL        time.Duration
	BalanceMaxEntries int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Webhook.Secrets = parseSecretMap(os.Getenv("WEBHOOK_SECRETS"))
	c.Webhook.ReplayWindow = optDuration("WEBHOOK_REPLAY_WINDOW")
	c.Webhook.MaxRetries = optInt("WEBHOOK_MAX_RETRIES")
	c.Webhook.RetryBase = optDuration("WEBHOOK_RETRY_BASE")
	c.Webhook.RetryMax = optDuration("WEBHOOK_RETRY_MAX")

	c.Sweep.Interval = optDuration("SWEEP_INTERVAL")
	c.Sweep.BatchSize = optInt("SWEEP_BATCH_SIZE")
	c.Sweep.Epsilon = int64(optInt("SWEEP_EPSILON"))

	c.Breaker.FailureThreshold = optInt("BREAKER_FAILURE_THRESHOLD")
	c.Breaker.ResetTimeout = optDuration("BREAKER_RESET_TIMEOUT")

	c.Velocity.DebitLimit = optInt("VELOCITY_DEBIT_LIMIT")
	c.Velocity.Window = optDuration("VELOCITY_WINDOW")

	c.Alert.CoalesceWindow = optDuration("ALERT_COALESCE_WINDOW")
	c.Alert.HighValueThreshold = int64(optInt("ALERT_HIGH_VALUE_THRESHOLD"))
	c.Alert.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Alert.TelegramChatID = strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))

	c.Cache.BalanceTTL = optDuration("BALANCE_CACHE_TTL")
	c.Cache.BalanceMaxEntries = optInt("BALANCE_CACHE_MAX_ENTRIES")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if len(c.Webhook.Secrets) == 0 {
			errs = append(errs, errors.New("WEBHOOK_SECRETS is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Webhook.ReplayWindow <= 0 {
		c.Webhook.ReplayWindow = 5 * time.Minute
	}
	if c.Webhook.MaxRetries <= 0 {
		c.Webhook.MaxRetries = 3
	}
	if c.Webhook.RetryBase <= 0 {
		c.Webhook.RetryBase = 1 * time.Second
	}
	if c.Webhook.RetryMax <= 0 {
		c.Webhook.RetryMax = 30 * time.Second
	}
	if c.Webhook.RetryMax < c.Webhook.RetryBase {
		errs = append(errs, errors.New("WEBHOOK_RETRY_MAX must be >= WEBHOOK_RETRY_BASE"))
	}

	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = 6 * time.Hour
	}
	if c.Sweep.BatchSize <= 0 {
		c.Sweep.BatchSize = 500
	}
	if c.Sweep.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("SWEEP_EPSILON must be >= 0, got %d", c.Sweep.Epsilon))
	}

	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}

	if c.Velocity.DebitLimit <= 0 {
		c.Velocity.DebitLimit = 10
	}
	if c.Velocity.Window <= 0 {
		c.Velocity.Window = time.Minute
	}

	if c.Alert.CoalesceWindow <= 0 {
		c.Alert.CoalesceWindow = 10 * time.Minute
	}
	if c.Alert.HighValueThreshold <= 0 {
		c.Alert.HighValueThreshold = 100_000
	}
	if (c.Alert.TelegramBotToken == "") != (c.Alert.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}

	if c.Cache.BalanceTTL <= 0 {
		c.Cache.BalanceTTL = 30 * time.Second
	}
	if c.Cache.BalanceMaxEntries <= 0 {
		c.Cache.BalanceMaxEntries = 10_000
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// parseSecretMap parses "provider=secret,provider2=secret2".
// Malformed pairs are dropped rather than failing the whole load; a missing
// provider secret surfaces later as a signature rejection, not a boot failure.
func parseSecretMap(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optInt returns 0 for unset or unparseable values; defaults are applied in Validate().
func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
