package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "tableservice"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "DB_HOST is required") || !strings.Contains(err.Error(), "JWT_SECRET is required") {
		t.Fatalf("expected all problems to be reported, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := baseConfig("production")
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := baseConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Abuse.CallThreshold != 5 || c.Abuse.Window != time.Minute {
		t.Fatalf("expected 5 calls per 60s default, got %d per %s", c.Abuse.CallThreshold, c.Abuse.Window)
	}
	if c.Abuse.RateCounter != RateCounterHistory {
		t.Fatalf("expected history rate counter, got %q", c.Abuse.RateCounter)
	}
	if !c.HasTransport(TransportHub) || c.HasTransport(TransportMQTT) {
		t.Fatalf("expected hub-only broadcast by default, got %v", c.Realtime.Transports)
	}
	if c.Realtime.Mirror != MirrorRedis || c.Push.Provider != PushLog {
		t.Fatalf("unexpected defaults: mirror=%q push=%q", c.Realtime.Mirror, c.Push.Provider)
	}
}

func TestValidate_MQTTNeedsBroker(t *testing.T) {
	c := baseConfig("dev")
	c.Realtime.Transports = []string{TransportHub, TransportMQTT}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "MQTT_BROKER_URL") {
		t.Fatalf("expected MQTT_BROKER_URL error, got %v", err)
	}
}

func TestValidate_RejectsUnknownEnums(t *testing.T) {
	c := baseConfig("dev")
	c.Abuse.RateCounter = "memcached"
	c.Realtime.Mirror = "firebase"
	c.Push.Provider = "pigeon"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"RATE_COUNTER", "MIRROR_BACKEND", "PUSH_PROVIDER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "tableservice")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SPAM_CALL_THRESHOLD", "3")
	t.Setenv("SPAM_WINDOW", "30s")
	t.Setenv("AUTO_SILENCE_DURATION", "0")
	t.Setenv("SINGLE_ACTIVE_CALL", "true")
	t.Setenv("BROADCAST_TRANSPORTS", "hub, MQTT")
	t.Setenv("MQTT_BROKER_URL", "tcp://broker:1883")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Abuse.CallThreshold != 3 || c.Abuse.Window != 30*time.Second {
		t.Fatalf("unexpected abuse policy: %+v", c.Abuse)
	}
	if c.Abuse.AutoSilenceDuration != 0 || !c.Abuse.SingleActiveCall {
		t.Fatalf("unexpected abuse policy: %+v", c.Abuse)
	}
	if !c.HasTransport(TransportMQTT) {
		t.Fatalf("expected mqtt transport, got %v", c.Realtime.Transports)
	}
	if len(c.Events.KafkaBrokers) != 2 || c.Events.KafkaTopic != "waiter-calls" {
		t.Fatalf("unexpected events config: %+v", c.Events)
	}
	if c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("SPAM_WINDOW", "soon")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "SPAM_WINDOW") {
		t.Fatalf("expected SPAM_WINDOW parse error, got %v", err)
	}
}

func TestLoad_ReportsEveryParseError(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("SPAM_CALL_THRESHOLD", "many")
	t.Setenv("SINGLE_ACTIVE_CALL", "maybe")
	t.Setenv("PUSH_TIMEOUT", "later")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, key := range []string{"APP_PORT", "REDIS_PORT is required", "SPAM_CALL_THRESHOLD", "SINGLE_ACTIVE_CALL", "PUSH_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "DB_PORT") {
		t.Fatalf("DB_PORT is valid, got %v", err)
	}
}
