package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"bot-ofertas/internal/models"
)

// Config contém as configurações da aplicação
type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	Amazon       AmazonConfig
	Filter       FilterConfig
	Distribution DistributionConfig
	Schedule     ScheduleConfig
	Scraper      ScraperConfig
	Telegram     TelegramConfig
	Discord      DiscordConfig
	Twitter      TwitterConfig
	Email        EmailConfig
	Bitly        BitlyConfig
	HTTPAddr     string `validate:"required"`
	LogLevel     string `validate:"oneof=debug info warn warning error"`
}

type DatabaseConfig struct {
	Driver string `validate:"oneof=sqlite3 postgres"`
	URL    string `validate:"required"`
}

// RedisConfig é opcional: sem endereço o lock de distribuição fica só no processo
type RedisConfig struct {
	Address  string
	Password string
	DB       int `validate:"gte=0"`
}

type AmazonConfig struct {
	AssociatesID string
	Regions      []string `validate:"min=1,dive,len=2"`
	// TagOverrides permite definir a tag de uma região manualmente (REGIAO=tag)
	TagOverrides map[string]string
}

type FilterConfig struct {
	MinDiscount float64 `validate:"gte=0,lte=100"`
	MinRating   float64 `validate:"gte=0,lte=5"`
	MinReviews  int     `validate:"gte=0"`
	MaxPrice    float64 `validate:"gte=0"`
}

type DistributionConfig struct {
	FreshnessWindow time.Duration `validate:"gt=0"`
	BatchSize       int           `validate:"gt=0"`
	PostDelay       time.Duration `validate:"gte=0"`
	ChannelTimeout  time.Duration `validate:"gt=0"`
	PassBudget      time.Duration `validate:"gt=0,ltfield=LockTTL"`
	LockTTL         time.Duration `validate:"gt=0"`
}

// ScheduleConfig usa expressões do robfig/cron (aceita @every 15m)
type ScheduleConfig struct {
	Scraping string `validate:"required"`
	Posting  string `validate:"required"`
	Digest   string `validate:"required"`
}

type ScraperConfig struct {
	UserAgent   string
	Delay       time.Duration `validate:"gte=0"`
	Parallelism int           `validate:"gt=0"`
	Timeout     time.Duration `validate:"gt=0"`
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	// Commands liga o atendimento de comandos (/ofertas, /pendentes...) no modo serve
	Commands bool
}

type DiscordConfig struct {
	WebhookURL string `validate:"omitempty,url"`
}

type TwitterConfig struct {
	AccessToken string
	APIURL      string `validate:"required,url"`
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int `validate:"gte=0,lte=65535"`
	SMTPUser     string
	SMTPPassword string
	From         string
	Recipients   []string `validate:"dive,email"`
	MaxDigest    int      `validate:"gt=0"`
}

type BitlyConfig struct {
	AccessToken string
	APIURL      string `validate:"required,url"`
}

// Load carrega o .env (quando existir) e as configurações das variáveis de ambiente
func Load() (*Config, error) {
	// o .env é opcional, em produção as variáveis vêm do ambiente
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv monta a configuração só a partir do ambiente, sem ler o .env
func FromEnv() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite3"),
			URL:    getEnv("DATABASE_URL", "./ofertas.db"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Amazon: AmazonConfig{
			AssociatesID: getEnv("AMAZON_ASSOCIATES_ID", ""),
			Regions:      getEnvAsList("AMAZON_REGIONS", []string{"US"}),
			TagOverrides: getEnvAsMap("AMAZON_TAG_OVERRIDES"),
		},
		Filter: FilterConfig{
			MinDiscount: getEnvAsFloat("MIN_DISCOUNT_PERCENTAGE", 20),
			MinRating:   getEnvAsFloat("MIN_PRODUCT_RATING", 4.0),
			MinReviews:  getEnvAsInt("MIN_REVIEW_COUNT", 50),
			MaxPrice:    getEnvAsFloat("MAX_PRICE", 500),
		},
		Distribution: DistributionConfig{
			FreshnessWindow: getEnvAsDuration("FRESHNESS_WINDOW", time.Hour),
			BatchSize:       getEnvAsInt("DISTRIBUTION_BATCH_SIZE", 50),
			PostDelay:       getEnvAsDuration("POST_DELAY", 2*time.Second),
			ChannelTimeout:  getEnvAsDuration("CHANNEL_TIMEOUT", 30*time.Second),
			PassBudget:      getEnvAsDuration("PASS_BUDGET", 4*time.Minute),
			LockTTL:         getEnvAsDuration("DISTRIBUTION_LOCK_TTL", 5*time.Minute),
		},
		Schedule: ScheduleConfig{
			Scraping: getEnv("SCRAPING_SCHEDULE", "@every 15m"),
			Posting:  getEnv("POSTING_SCHEDULE", "@every 5m"),
			Digest:   getEnv("DIGEST_SCHEDULE", "0 9 * * *"),
		},
		Scraper: ScraperConfig{
			UserAgent:   getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"),
			Delay:       getEnvAsDuration("SCRAPER_DELAY", 2*time.Second),
			Parallelism: getEnvAsInt("SCRAPER_PARALLELISM", 2),
			Timeout:     getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			Commands: getEnvAsBool("TELEGRAM_COMMANDS", true),
		},
		Discord: DiscordConfig{
			WebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
		Twitter: TwitterConfig{
			AccessToken: getEnv("TWITTER_ACCESS_TOKEN", ""),
			APIURL:      getEnv("TWITTER_API_URL", "https://api.twitter.com"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("SMTP_FROM", getEnv("SMTP_USER", "")),
			Recipients:   getEnvAsList("EMAIL_RECIPIENTS", nil),
			MaxDigest:    getEnvAsInt("EMAIL_DIGEST_MAX", 20),
		},
		Bitly: BitlyConfig{
			AccessToken: getEnv("BITLY_ACCESS_TOKEN", ""),
			APIURL:      getEnv("BITLY_API_URL", "https://api-ssl.bitly.com"),
		},
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	for i, r := range cfg.Amazon.Regions {
		cfg.Amazon.Regions[i] = strings.ToUpper(r)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	return cfg, nil
}

// Thresholds converte os limites de filtro para o tipo usado pelo pipeline
func (c *Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		MinDiscount: c.Filter.MinDiscount,
		MinRating:   c.Filter.MinRating,
		MinReviews:  c.Filter.MinReviews,
		MaxPrice:    c.Filter.MaxPrice,
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration aceita "90s", "15m" ou um número puro em segundos
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsMap lê pares no formato "UK=minhatag-21,DE=outra-21"
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}
