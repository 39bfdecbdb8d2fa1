package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Phone   PhoneConfig
	Credits CreditsConfig
	Slack   SlackConfig
	Tasks   TasksConfig
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

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// PhoneConfig drives the duty phone webhooks.
type PhoneConfig struct {
	// VerifyElksIP rejects webhooks not coming from ElksAllowedIPs.
	VerifyElksIP bool
	// ElksAllowedIPs overrides the provider's published addresses when set.
	ElksAllowedIPs []string

	Timeout       time.Duration
	TimeoutMargin time.Duration

	Extension string
	MaxLength int

	// PublicBaseURL is the origin 46elks calls back on, e.g. https://cafe.example.org.
	PublicBaseURL string
	// TimeZone is used to match duty windows against the wall clock.
	TimeZone string
}

type CreditsConfig struct {
	Currency   string
	LegacyRate int64
}

type SlackConfig struct {
	// PhoneWebhookURL is optional; without it call notifications are only logged.
	PhoneWebhookURL string
}

type TasksConfig struct {
	// Backend is redis or memory. memory loses pending timers on restart.
	Backend  string
	PollSpec string
}

const (
	TasksBackendRedis  = "redis"
	TasksBackendMemory = "memory"
)

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

	c.Tasks.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("TASKS_BACKEND")))
	c.Tasks.PollSpec = strings.TrimSpace(os.Getenv("TASKS_POLL_SPEC"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Tasks.Backend != TasksBackendMemory || os.Getenv("REDIS_PORT") != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	{
		b, err := optionalBool("VERIFY_ELKS_IP", true)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Phone.VerifyElksIP = b
	}
	c.Phone.ElksAllowedIPs = splitList(os.Getenv("ELKS_ALLOWED_IPS"))
	{
		d, err := optionalDuration("PHONE_TIMEOUT")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Phone.Timeout = d
	}
	{
		d, err := optionalDuration("PHONE_TIMEOUT_MARGIN")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Phone.TimeoutMargin = d
	}
	c.Phone.Extension = strings.TrimSpace(os.Getenv("PHONE_EXTENSION"))
	{
		n, err := optionalInt("PHONE_MAX_LENGTH")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Phone.MaxLength = n
	}
	c.Phone.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	c.Phone.TimeZone = strings.TrimSpace(os.Getenv("APP_TIMEZONE"))

	c.Credits.Currency = strings.ToUpper(strings.TrimSpace(os.Getenv("CREDITS_CURRENCY")))
	{
		n, err := optionalInt("CREDITS_LEGACY_RATE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Credits.LegacyRate = int64(n)
	}

	c.Slack.PhoneWebhookURL = strings.TrimSpace(os.Getenv("SLACK_PHONE_WEBHOOK_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills in defaults for optional values.
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
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Tasks.Backend == "" {
		c.Tasks.Backend = TasksBackendRedis
	}
	switch c.Tasks.Backend {
	case TasksBackendRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	case TasksBackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("TASKS_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TASKS_BACKEND must be one of redis, memory, got %q", c.Tasks.Backend))
	}
	if c.Tasks.PollSpec == "" {
		c.Tasks.PollSpec = "@every 1s"
	}
	if _, err := cron.ParseStandard(c.Tasks.PollSpec); err != nil {
		errs = append(errs, fmt.Errorf("TASKS_POLL_SPEC is invalid: %v", err))
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
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.validatePhone()...)

	if c.Credits.Currency == "" {
		c.Credits.Currency = "SEK"
	}
	if !currencyCode.MatchString(c.Credits.Currency) {
		errs = append(errs, fmt.Errorf("CREDITS_CURRENCY must be a 3 letter ISO code, got %q", c.Credits.Currency))
	}
	if c.Credits.LegacyRate == 0 {
		c.Credits.LegacyRate = 5
	}
	if c.Credits.LegacyRate < 0 {
		errs = append(errs, fmt.Errorf("CREDITS_LEGACY_RATE must be positive, got %d", c.Credits.LegacyRate))
	}

	if c.Slack.PhoneWebhookURL != "" {
		if err := validateHTTPURL(c.Slack.PhoneWebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("SLACK_PHONE_WEBHOOK_URL %v", err))
		}
	}

	return joinErrors(errs)
}

func (c *Config) validatePhone() []error {
	var errs []error

	if c.Phone.Timeout == 0 {
		c.Phone.Timeout = 20 * time.Second
	}
	if c.Phone.TimeoutMargin == 0 {
		c.Phone.TimeoutMargin = 10 * time.Second
	}
	if c.Phone.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("PHONE_TIMEOUT must be at least 1s, got %s", c.Phone.Timeout))
	}
	if c.Phone.TimeoutMargin < 0 {
		errs = append(errs, fmt.Errorf("PHONE_TIMEOUT_MARGIN must not be negative, got %s", c.Phone.TimeoutMargin))
	}
	if c.Phone.Extension == "" {
		c.Phone.Extension = "239927"
	}
	if c.Phone.MaxLength == 0 {
		c.Phone.MaxLength = 12
	}
	if c.Phone.MaxLength < 0 {
		errs = append(errs, fmt.Errorf("PHONE_MAX_LENGTH must be positive, got %d", c.Phone.MaxLength))
	}

	if c.Phone.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.Phone.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}
	if c.Phone.PublicBaseURL != "" {
		if err := validateHTTPURL(c.Phone.PublicBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL %v", err))
		}
	}

	if c.Phone.TimeZone == "" {
		c.Phone.TimeZone = "Europe/Stockholm"
	}
	if _, err := time.LoadLocation(c.Phone.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE is invalid: %v", err))
	}
	return errs
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

// Location returns the duty-window time zone. Validate must have passed.
func (p PhoneConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

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

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// optionalDuration accepts Go durations ("20s") or plain seconds ("20").
func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func mustDuration(key string) time.Duration {
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

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	return nil
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
