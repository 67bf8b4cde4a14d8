package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/storefront/pkg/utils"
)

type Config struct {
	Env       string    `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel  string    `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  PG        `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Razorpay  Razorpay  `yaml:"razorpay"`
	JWT       JWT       `yaml:"jwt"`
	SMTP      SMTP      `yaml:"smtp"`
	Twilio    Twilio    `yaml:"twilio"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Limiter   Limiter   `yaml:"limiter"`
	Order     Order     `yaml:"order"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL            string `yaml:"url" env:"DB_URL"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"notification-service-group"`
}

type Razorpay struct {
	KeyID     string        `yaml:"key_id" env:"RAZORPAY_KEY_ID"`
	KeySecret string        `yaml:"key_secret" env:"RAZORPAY_KEY_SECRET"`
	Currency  string        `yaml:"currency" env-default:"INR"`
	Timeout   time.Duration `yaml:"timeout" env-default:"5s"`
}

type JWT struct {
	Secret    string        `yaml:"secret" env:"JWT_SECRET"`
	AccessTTL time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"24h"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type Twilio struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromPhone  string `yaml:"from_phone" env:"TWILIO_PHONE_NUMBER"`
}

// RateLimit throttles sensitive operations per user.
type RateLimit struct {
	Max    int           `yaml:"max" env-default:"5"`
	Window time.Duration `yaml:"window" env-default:"15m"`
}

// Limiter is the per-IP limit applied to the whole API.
type Limiter struct {
	Max        int           `yaml:"max" env-default:"100"`
	Expiration time.Duration `yaml:"expiration" env-default:"1m"`
}

type Order struct {
	ReturnWindow   time.Duration `yaml:"return_window" env-default:"720h"`
	ExchangeWindow time.Duration `yaml:"exchange_window" env-default:"360h"`
}

// Telemetry points the OTLP/HTTP exporter at a collector. An empty endpoint disables export.
type Telemetry struct {
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACE_SAMPLE_RATIO" env-default:"0.1"`
}

func (c *Config) TracerConfig(service string) utils.TracerConfig {
	return utils.TracerConfig{
		Service:     service,
		Env:         c.Env,
		Endpoint:    c.Telemetry.Endpoint,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
