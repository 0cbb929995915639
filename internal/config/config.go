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
// All values must come from env (or an env-file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Abuse     AbuseConfig
	Realtime  RealtimeConfig
	Events    EventsConfig
	Push      PushConfig
	Telemetry TelemetryConfig
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
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AbuseConfig is the call-rate and origin policy applied on call creation.
type AbuseConfig struct {
	CallThreshold       int
	Window              time.Duration
	AutoSilenceDuration time.Duration // 0 keeps automatic silences until staff clears them
	OriginCacheTTL      time.Duration
	SingleActiveCall    bool
	RateCounter         string // history | redis
	SilenceSweepEvery   time.Duration
}

type RealtimeConfig struct {
	Transports []string // hub, mqtt
	MQTT       MQTTConfig
	Mirror     string // redis | none
	MirrorTTL  time.Duration
}

type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type PushConfig struct {
	Provider string // shoutrrr | webhook | log
	Timeout  time.Duration
}

type TelemetryConfig struct {
	SentryDSN string
}

const (
	RateCounterHistory = "history"
	RateCounterRedis   = "redis"

	TransportHub  = "hub"
	TransportMQTT = "mqtt"

	MirrorRedis = "redis"
	MirrorNone  = "none"

	PushShoutrrr = "shoutrrr"
	PushWebhook  = "webhook"
	PushLog      = "log"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		v, err := mustInt("APP_PORT")
		c.App.Port, parseErrs = appendParseErr(parseErrs, v, err)
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		v, err := mustInt("DB_PORT")
		c.DB.Port, parseErrs = appendParseErr(parseErrs, v, err)
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		v, err := mustInt("REDIS_PORT")
		c.Redis.Port, parseErrs = appendParseErr(parseErrs, v, err)
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Optional durations; defaults applied in Validate().
	{
		v, err := optDuration("JWT_ACCESS_TTL")
		c.Auth.AccessTokenTTL, parseErrs = appendParseErr(parseErrs, v, err)
	}
	{
		v, err := optDuration("JWT_REFRESH_TTL")
		c.Auth.RefreshTokenTTL, parseErrs = appendParseErr(parseErrs, v, err)
	}

	{
		v, err := optInt("SPAM_CALL_THRESHOLD")
		c.Abuse.CallThreshold, parseErrs = appendParseErr(parseErrs, v, err)
	}
	{
		v, err := optDuration("SPAM_WINDOW")
		c.Abuse.Window, parseErrs = appendParseErr(parseErrs, v, err)
	}
	{
		v, err := optDuration("AUTO_SILENCE_DURATION")
		c.Abuse.AutoSilenceDuration, parseErrs = appendParseErr(parseErrs, v, err)
	}
	{
		v, err := optDuration("ORIGIN_BLOCK_CACHE_TTL")
		c.Abuse.OriginCacheTTL, parseErrs = appendParseErr(parseErrs, v, err)
	}
	{
		v, err := optBool("SINGLE_ACTIVE_CALL")
		c.Abuse.SingleActiveCall, parseErrs = appendParseErr(parseErrs, v, err)
	}
	c.Abuse.RateCounter = strings.ToLower(strings.TrimSpace(os.Getenv("RATE_COUNTER")))
	{
		v, err := optDuration("SILENCE_SWEEP_INTERVAL")
		c.Abuse.SilenceSweepEvery, parseErrs = appendParseErr(parseErrs, v, err)
	}
	if _, set := os.LookupEnv("AUTO_SILENCE_DURATION"); !set {
		c.Abuse.AutoSilenceDuration = 15 * time.Minute
	}

	c.Realtime.Transports = splitList(os.Getenv("BROADCAST_TRANSPORTS"))
	c.Realtime.MQTT.BrokerURL = strings.TrimSpace(os.Getenv("MQTT_BROKER_URL"))
	c.Realtime.MQTT.ClientID = strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	c.Realtime.MQTT.Username = strings.TrimSpace(os.Getenv("MQTT_USERNAME"))
	c.Realtime.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	c.Realtime.MQTT.TopicPrefix = strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))
	c.Realtime.Mirror = strings.ToLower(strings.TrimSpace(os.Getenv("MIRROR_BACKEND")))
	{
		v, err := optDuration("MIRROR_TTL")
		c.Realtime.MirrorTTL, parseErrs = appendParseErr(parseErrs, v, err)
	}

	c.Events.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	c.Events.KafkaTopic = strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))

	c.Push.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("PUSH_PROVIDER")))
	{
		v, err := optDuration("PUSH_TIMEOUT")
		c.Push.Timeout, parseErrs = appendParseErr(parseErrs, v, err)
	}

	c.Telemetry.SentryDSN = strings.TrimSpace(os.Getenv("SENTRY_DSN"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills in defaults for optional
// settings.
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

	errs = append(errs, c.validateAbuse()...)
	errs = append(errs, c.validateRealtime()...)

	if c.Push.Provider == "" {
		c.Push.Provider = PushLog
	}
	switch c.Push.Provider {
	case PushShoutrrr, PushWebhook, PushLog:
	default:
		errs = append(errs, fmt.Errorf("PUSH_PROVIDER must be one of shoutrrr, webhook, log, got %q", c.Push.Provider))
	}
	if c.Push.Timeout <= 0 {
		c.Push.Timeout = 5 * time.Second
	}

	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = "waiter-calls"
	}

	return joinErrors(errs)
}

func (c *Config) validateAbuse() []error {
	var errs []error

	if c.Abuse.CallThreshold == 0 {
		c.Abuse.CallThreshold = 5
	}
	if c.Abuse.CallThreshold < 0 {
		errs = append(errs, fmt.Errorf("SPAM_CALL_THRESHOLD must be > 0, got %d", c.Abuse.CallThreshold))
	}
	if c.Abuse.Window == 0 {
		c.Abuse.Window = time.Minute
	}
	if c.Abuse.Window < 0 {
		errs = append(errs, fmt.Errorf("SPAM_WINDOW must be > 0, got %s", c.Abuse.Window))
	}
	if c.Abuse.AutoSilenceDuration < 0 {
		errs = append(errs, fmt.Errorf("AUTO_SILENCE_DURATION must be >= 0, got %s", c.Abuse.AutoSilenceDuration))
	}
	if c.Abuse.OriginCacheTTL <= 0 {
		c.Abuse.OriginCacheTTL = 30 * time.Second
	}
	if c.Abuse.SilenceSweepEvery <= 0 {
		c.Abuse.SilenceSweepEvery = 30 * time.Second
	}
	if c.Abuse.RateCounter == "" {
		c.Abuse.RateCounter = RateCounterHistory
	}
	if c.Abuse.RateCounter != RateCounterHistory && c.Abuse.RateCounter != RateCounterRedis {
		errs = append(errs, fmt.Errorf("RATE_COUNTER must be one of history, redis, got %q", c.Abuse.RateCounter))
	}
	return errs
}

func (c *Config) validateRealtime() []error {
	var errs []error

	if len(c.Realtime.Transports) == 0 {
		c.Realtime.Transports = []string{TransportHub}
	}
	for _, t := range c.Realtime.Transports {
		switch t {
		case TransportHub:
		case TransportMQTT:
			if c.Realtime.MQTT.BrokerURL == "" {
				errs = append(errs, errors.New("MQTT_BROKER_URL is required when BROADCAST_TRANSPORTS includes mqtt"))
			}
		default:
			errs = append(errs, fmt.Errorf("BROADCAST_TRANSPORTS entries must be hub or mqtt, got %q", t))
		}
	}
	if c.Realtime.MQTT.ClientID == "" {
		c.Realtime.MQTT.ClientID = "tableservice-api"
	}
	if c.Realtime.MQTT.TopicPrefix == "" {
		c.Realtime.MQTT.TopicPrefix = "tableservice"
	}

	if c.Realtime.Mirror == "" {
		c.Realtime.Mirror = MirrorRedis
	}
	if c.Realtime.Mirror != MirrorRedis && c.Realtime.Mirror != MirrorNone {
		errs = append(errs, fmt.Errorf("MIRROR_BACKEND must be one of redis, none, got %q", c.Realtime.Mirror))
	}
	if c.Realtime.MirrorTTL <= 0 {
		c.Realtime.MirrorTTL = 24 * time.Hour
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// HasTransport reports whether name is one of the configured broadcast transports.
func (c Config) HasTransport(name string) bool {
	for _, t := range c.Realtime.Transports {
		if t == name {
			return true
		}
	}
	return false
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

func optInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func optBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func appendParseErr[T any](errs []error, v T, err error) (T, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
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
