// Package distributor executa as passadas de distribuição: seleciona os produtos
// pendentes, envia cada um para todos os canais ao mesmo tempo e registra o resultado.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"bot-ofertas/internal/channel"
	"bot-ofertas/internal/database"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

// ErrPassInProgress é retornado quando outra passada já está rodando (neste ou em outro processo)
var ErrPassInProgress = errors.New("distribuição já em andamento")

// Store é o subconjunto do repositório usado na distribuição
type Store interface {
	SelectPending(ctx context.Context, t models.Thresholds, window time.Duration, limit int) ([]models.Product, error)
	RecordOutcome(ctx context.Context, p models.Product, outcomes []models.ChannelOutcome) (models.Deal, error)
}

// LinkBuilder gera o link de afiliado de um produto
type LinkBuilder interface {
	Rewrite(rawURL, region string) string
}

// Shortener encurta links; em caso de falha devolve o link recebido
type Shortener interface {
	Shorten(ctx context.Context, url string) string
}

// PassLock impede passadas simultâneas entre processos diferentes
type PassLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Metrics recebe as medições da distribuição
type Metrics interface {
	ObserveSend(channel string, delivered bool, elapsed time.Duration)
	ObservePass(result string, distributed int, elapsed time.Duration)
}

// Options controla o tamanho e o ritmo de cada passada
type Options struct {
	Thresholds     models.Thresholds
	Window         time.Duration
	BatchSize      int
	Delay          time.Duration
	ChannelTimeout time.Duration
	Budget         time.Duration
	RecordTimeout  time.Duration
}

// Summary resume uma passada
type Summary struct {
	PassID      string         `json:"pass_id"`
	Selected    int            `json:"selected"`
	Distributed int            `json:"distributed"`
	Delivered   map[string]int `json:"delivered"`
	Failed      map[string]int `json:"failed"`
	Abandoned   bool           `json:"abandoned"`
	Duration    time.Duration  `json:"duration"`
}

// Coordinator distribui os produtos pendentes pelos canais configurados
type Coordinator struct {
	store    Store
	links    LinkBuilder
	channels []channel.Channel
	opts     Options
	log      logger.Logger

	shortener Shortener
	lock      PassLock
	metrics   Metrics
	newRetry  func() backoff.BackOff

	running atomic.Bool
}

// Option configura dependências opcionais do Coordinator
type Option func(*Coordinator)

// WithShortener encurta o link de afiliado antes do envio
func WithShortener(s Shortener) Option {
	return func(c *Coordinator) { c.shortener = s }
}

// WithLock adiciona uma trava entre processos além da trava local
func WithLock(l PassLock) Option {
	return func(c *Coordinator) { c.lock = l }
}

// WithMetrics registra as medições de envio e das passadas
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New cria o coordenador
func New(store Store, links LinkBuilder, channels []channel.Channel, opts Options, log logger.Logger, options ...Option) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 10 * time.Second
	}

	c := &Coordinator{
		store:    store,
		links:    links,
		channels: channels,
		opts:     opts,
		log:      log.With(logger.String("componente", "distribuidor")),
		newRetry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 3 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Channels retorna os nomes dos canais na ordem em que os resultados são gravados
func (c *Coordinator) Channels() []string {
	names := make([]string, len(c.channels))
	for i, ch := range c.channels {
		names[i] = ch.Name()
	}
	return names
}

// Running diz se há uma passada em andamento neste processo
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run executa uma passada de distribuição. Se outra passada estiver rodando,
// retorna ErrPassInProgress sem esperar.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	if !c.running.CompareAndSwap(false, true) {
		c.observePass("skipped", 0, 0)
		return Summary{}, ErrPassInProgress
	}
	defer c.running.Store(false)

	if c.lock != nil {
		ok, err := c.lock.TryLock(ctx)
		if err != nil {
			c.observePass("error", 0, time.Since(start))
			return Summary{}, fmt.Errorf("erro ao obter trava de distribuição: %w", err)
		}
		if !ok {
			c.observePass("skipped", 0, 0)
			return Summary{}, ErrPassInProgress
		}
		defer func() {
			if err := c.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				c.log.Warn("erro ao liberar trava de distribuição", logger.Error(err))
			}
		}()
	}

	sum := Summary{
		PassID:    uuid.NewString(),
		Delivered: make(map[string]int, len(c.channels)),
		Failed:    make(map[string]int, len(c.channels)),
	}
	log := c.log.With(logger.String("passada", sum.PassID))

	passCtx := ctx
	if c.opts.Budget > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, c.opts.Budget)
		defer cancel()
	}

	products, err := c.store.SelectPending(passCtx, c.opts.Thresholds, c.opts.Window, c.opts.BatchSize)
	if err != nil {
		sum.Duration = time.Since(start)
		c.observePass("error", 0, sum.Duration)
		return sum, fmt.Errorf("erro ao selecionar produtos pendentes: %w", err)
	}
	sum.Selected = len(products)
	log.Info("passada de distribuição iniciada", logger.Int("produtos", len(products)))

	for i, p := range products {
		if i > 0 && !c.wait(passCtx) {
			sum.Abandoned = true
			break
		}

		sent, outcomes, ok := c.distribute(passCtx, p)
		if !ok {
			log.Warn("tempo da passada esgotado, produto fica para a próxima", logger.String("asin", p.ASIN))
			sum.Abandoned = true
			break
		}
		if c.record(ctx, log, sent, outcomes) {
			sum.Distributed++
			for _, o := range outcomes {
				if o.Delivered {
					sum.Delivered[o.Channel]++
				} else {
					sum.Failed[o.Channel]++
				}
			}
		}
	}

	sum.Duration = time.Since(start)
	result := "ok"
	if sum.Abandoned {
		result = "abandoned"
	}
	c.observePass(result, sum.Distributed, sum.Duration)

	log.Info("passada de distribuição concluída",
		logger.Int("selecionados", sum.Selected),
		logger.Int("distribuidos", sum.Distributed),
		logger.Bool("abandonada", sum.Abandoned),
		logger.Duration("duracao", sum.Duration),
	)
	return sum, nil
}

// distribute gera o link, monta a mensagem e envia para todos os canais ao mesmo tempo.
// Retorna false se a passada terminou antes de todos os canais responderem.
func (c *Coordinator) distribute(ctx context.Context, p models.Product) (models.Product, []models.ChannelOutcome, bool) {
	link := c.links.Rewrite(p.ProductURL, p.Region)
	if c.shortener != nil {
		link = c.shortener.Shorten(ctx, link)
	}
	p.AffiliateURL = &link
	message := channel.FormatMessage(p)

	type result struct {
		index   int
		outcome models.ChannelOutcome
	}
	results := make(chan result, len(c.channels))
	for i, ch := range c.channels {
		go func() {
			results <- result{index: i, outcome: c.send(ctx, ch, message, p)}
		}()
	}

	outcomes := make([]models.ChannelOutcome, len(c.channels))
	for range c.channels {
		select {
		case r := <-results:
			outcomes[r.index] = r.outcome
		case <-ctx.Done():
			return p, nil, false
		}
	}
	// resultados produzidos pelo fim da passada não são gravados
	if ctx.Err() != nil {
		return p, nil, false
	}
	return p, outcomes, true
}

// send chama um canal com prazo próprio. Erros e pânicos viram falha no resultado.
func (c *Coordinator) send(ctx context.Context, ch channel.Channel, message string, p models.Product) models.ChannelOutcome {
	name := ch.Name()
	if c.opts.ChannelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ChannelTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("pânico no canal: %v", r)
			}
		}()
		done <- ch.Send(ctx, message, p)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("tempo esgotado: %w", ctx.Err())
	}

	outcome := models.ChannelOutcome{Channel: name, Delivered: err == nil}
	if err != nil {
		outcome.Reason = err.Error()
		if !errors.Is(err, channel.ErrNotConfigured) {
			c.log.Warn("falha ao enviar oferta",
				logger.String("canal", name),
				logger.String("asin", p.ASIN),
				logger.Error(err),
			)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveSend(name, outcome.Delivered, time.Since(start))
	}
	return outcome
}

// record grava o resultado do produto. Conflitos de escrita são repetidos com backoff.
func (c *Coordinator) record(ctx context.Context, log logger.Logger, p models.Product, outcomes []models.ChannelOutcome) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RecordTimeout)
	defer cancel()

	var deal models.Deal
	op := func() error {
		var err error
		deal, err = c.store.RecordOutcome(ctx, p, outcomes)
		if err != nil && !errors.Is(err, database.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(c.newRetry(), ctx))
	switch {
	case errors.Is(err, database.ErrAlreadyPosted):
		log.Warn("produto já distribuído por outra passada", logger.String("asin", p.ASIN))
		return false
	case err != nil:
		log.Error("erro ao registrar distribuição", logger.String("asin", p.ASIN), logger.Error(err))
		return false
	}

	log.Info("oferta distribuída",
		logger.String("asin", p.ASIN),
		logger.Int64("deal_id", deal.ID),
		logger.Float64("desconto", p.Discount),
	)
	return true
}

// wait aguarda o intervalo entre produtos; false se a passada terminou antes
func (c *Coordinator) wait(ctx context.Context) bool {
	if c.opts.Delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(c.opts.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) observePass(result string, distributed int, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.ObservePass(result, distributed, elapsed)
	}
}
