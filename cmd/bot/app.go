package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"bot-ofertas/config"
	"bot-ofertas/internal/affiliate"
	"bot-ofertas/internal/bot"
	"bot-ofertas/internal/channel"
	"bot-ofertas/internal/database"
	"bot-ofertas/internal/distributor"
	"bot-ofertas/internal/ingest"
	"bot-ofertas/internal/lock"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/metrics"
	"bot-ofertas/internal/scraper"
)

const distributionLockKey = "ofertas:distribuicao"

// app reúne os componentes montados a partir da configuração
type app struct {
	cfg     *config.Config
	log     logger.Logger
	db      *database.DB
	redis   *redis.Client
	lock    *lock.Redis
	metrics *metrics.Metrics

	telegram    *tgbotapi.BotAPI
	digest      *channel.Digest
	ingestor    *ingest.Ingestor
	coordinator *distributor.Coordinator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar logger: %w", err)
	}

	db, err := database.New(cfg.Database.Driver, cfg.Database.URL, log)
	if err != nil {
		return nil, fmt.Errorf("erro ao inicializar banco de dados: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		metrics: metrics.New(),
	}

	var opts []distributor.Option
	if cfg.Redis.Address != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("erro ao conectar no Redis: %w", err)
		}
		a.lock = lock.New(a.redis, distributionLockKey, cfg.Distribution.LockTTL)
		opts = append(opts, distributor.WithLock(a.lock))
		log.Info("trava de distribuição no Redis habilitada", logger.String("endereco", cfg.Redis.Address))
	}

	a.ingestor = ingest.New(a.sources(), db, cfg.Thresholds(), a.metrics, log)

	channels := a.channels()
	shortener := affiliate.NewShortener(cfg.Bitly.AccessToken, cfg.Bitly.APIURL, log)
	opts = append(opts, distributor.WithShortener(shortener), distributor.WithMetrics(a.metrics))
	a.coordinator = distributor.New(
		db,
		affiliate.NewBuilder(cfg.Amazon.AssociatesID, cfg.Amazon.TagOverrides),
		channels,
		distributor.Options{
			Thresholds:     cfg.Thresholds(),
			Window:         cfg.Distribution.FreshnessWindow,
			BatchSize:      cfg.Distribution.BatchSize,
			Delay:          cfg.Distribution.PostDelay,
			ChannelTimeout: cfg.Distribution.ChannelTimeout,
			Budget:         cfg.Distribution.PassBudget,
		},
		log,
		opts...,
	)
	return a, nil
}

func (a *app) sources() *scraper.Registry {
	opts := scraper.Options{
		UserAgent:   a.cfg.Scraper.UserAgent,
		Delay:       a.cfg.Scraper.Delay,
		Parallelism: a.cfg.Scraper.Parallelism,
		Timeout:     a.cfg.Scraper.Timeout,
	}
	var sources []scraper.Source
	for _, region := range a.cfg.Amazon.Regions {
		sources = append(sources, scraper.NewAmazonSource(region, opts, a.log))
	}
	return scraper.NewRegistry(sources...)
}

// channels monta os canais na ordem em que aparecem no histórico; os que
// não estiverem configurados entram desabilitados
func (a *app) channels() []channel.Channel {
	var telegram channel.Channel = channel.Disabled("telegram")
	if a.cfg.Telegram.BotToken != "" {
		api, err := bot.Init(a.cfg.Telegram.BotToken, a.log)
		if err != nil {
			a.log.Error("Telegram desabilitado", logger.Error(err))
		} else {
			a.telegram = api
			telegram = bot.NewNotifier(api, a.cfg.Telegram.ChatID, a.log)
		}
	}

	email := a.cfg.Email
	a.digest = channel.NewDigest(channel.SMTPConfig{
		Host:       email.SMTPHost,
		Port:       email.SMTPPort,
		User:       email.SMTPUser,
		Password:   email.SMTPPassword,
		From:       email.From,
		Recipients: email.Recipients,
	}, a.db, email.MaxDigest, a.log)
	var digest channel.Channel = channel.Disabled("email")
	if a.digest.Configured() {
		digest = a.digest
	}

	channels := []channel.Channel{
		telegram,
		channel.NewDiscord(a.cfg.Discord.WebhookURL, a.log),
		channel.NewTwitter(a.cfg.Twitter.AccessToken, a.cfg.Twitter.APIURL, a.log),
		digest,
	}
	for _, ch := range channels {
		if channel.IsDisabled(ch) {
			a.log.Info("canal desabilitado", logger.String("canal", ch.Name()))
		}
	}
	return channels
}

// Close libera as conexões abertas
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("erro ao fechar o Redis", logger.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("erro ao fechar o banco de dados", logger.Error(err))
	}
	_ = a.log.Sync()
}
