package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		BaseURL        string   `yaml:"baseURL"`
		WriteTimeout   int      `yaml:"writeTimeoutSeconds"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		SecureCookies  bool     `yaml:"secureCookies"`

		// TrustProxyHeaders keys rate limits on X-Real-IP / X-Forwarded-For.
		// Enable only behind a proxy that overwrites them.
		TrustProxyHeaders bool `yaml:"trustProxyHeaders"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres | mysql | sqlite
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	Stripe struct {
		SecretKey           string `yaml:"secretKey"`
		WebhookSecret       string `yaml:"webhookSecret"`
		TrialDays           int64  `yaml:"trialDays"`
		RequireSubscription bool   `yaml:"requireSubscription"`
		Prices              []struct {
			Plan    string `yaml:"plan"`
			PriceID string `yaml:"priceId"`
			Label   string `yaml:"label"`
		} `yaml:"prices"`
	} `yaml:"stripe"`

	Auth struct {
		Secret           string `yaml:"secret"`
		MagicLinkMinutes int    `yaml:"magicLinkMinutes"`
		SessionDays      int    `yaml:"sessionDays"`
	} `yaml:"auth"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Queue struct {
		Secret string `yaml:"secret"`
	} `yaml:"queue"`

	OCR struct {
		Language string `yaml:"language"`
		Disabled bool   `yaml:"disabled"`
	} `yaml:"ocr"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`
}

// Load baca file config.yaml (boleh tidak ada), lalu override dari environment.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(dst *bool, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	num(&c.Server.Port, "PORT")
	str(&c.Server.BaseURL, "BASE_URL")
	flag(&c.Server.SecureCookies, "SECURE_COOKIES")
	flag(&c.Server.TrustProxyHeaders, "TRUST_PROXY_HEADERS")
	str(&c.Log.Level, "LOG_LEVEL")

	str(&c.Database.Driver, "DATABASE_DRIVER")
	str(&c.Database.DSN, "DATABASE_DSN")

	str(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	str(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	str(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	str(&c.Minio.BucketName, "MINIO_BUCKET")
	str(&c.Minio.Region, "MINIO_REGION")
	flag(&c.Minio.UseSSL, "MINIO_USE_SSL")

	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.Model, "OPENAI_MODEL")
	str(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	str(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	str(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	flag(&c.Stripe.RequireSubscription, "REQUIRE_SUBSCRIPTION")

	str(&c.Auth.Secret, "AUTH_SECRET")

	str(&c.SMTP.Host, "SMTP_HOST")
	num(&c.SMTP.Port, "SMTP_PORT")
	str(&c.SMTP.User, "SMTP_USER")
	str(&c.SMTP.Password, "SMTP_PASSWORD")
	str(&c.SMTP.From, "SMTP_FROM")

	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Redis.Password, "REDIS_PASSWORD")

	str(&c.Queue.Secret, "QUEUE_SECRET")

	str(&c.OCR.Language, "OCR_LANGUAGE")
	flag(&c.OCR.Disabled, "OCR_DISABLED")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.WriteTimeout <= 0 {
		// three sequential model calls can take a while
		c.Server.WriteTimeout = 180
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "uploads"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Stripe.TrialDays == 0 {
		c.Stripe.TrialDays = 7
	}
	if c.Auth.MagicLinkMinutes <= 0 {
		c.Auth.MagicLinkMinutes = 24 * 60
	}
	if c.Auth.SessionDays <= 0 {
		c.Auth.SessionDays = 30
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 20
	}
	if c.RateLimit.RefillRate <= 0 {
		c.RateLimit.RefillRate = 1
	}
}

// Validate checks the secrets the server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.Secret == "" {
		missing = append(missing, "auth.secret (AUTH_SECRET)")
	}
	if c.Minio.Endpoint == "" {
		missing = append(missing, "minio.endpoint (MINIO_ENDPOINT)")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.apiKey (OPENAI_API_KEY)")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "stripe.secretKey (STRIPE_SECRET_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MagicLinkTTL lifetime of an emailed sign-in link.
func (c *Config) MagicLinkTTL() time.Duration {
	return time.Duration(c.Auth.MagicLinkMinutes) * time.Minute
}

// SessionTTL lifetime of a browser session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionDays) * 24 * time.Hour
}

// DatabaseDSN returns database.dsn, or builds one for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "sqlite":
		return "sitesafe.db"
	default:
		return c.PostgresDSN()
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	m := mysql.NewConfig()
	m.User = c.Database.User
	m.Passwd = c.Database.Password
	m.Net = "tcp"
	m.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
	m.DBName = c.Database.Name
	m.ParseTime = true
	m.Loc = time.UTC
	m.Params = map[string]string{"charset": "utf8mb4"}
	return m.FormatDSN()
}

// Helper untuk build DSN Postgres (format key=value lib/pq)
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, port, c.Database.User, c.Database.Password, c.Database.Name, ssl)
}
