// Package ingest executa a coleta: busca os fragmentos de cada fonte, extrai,
// filtra e grava os candidatos aprovados.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bot-ofertas/internal/database"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
	"bot-ofertas/internal/scraper"
)

// ErrUnknownSource é retornado quando a fonte pedida não está registrada
var ErrUnknownSource = errors.New("fonte desconhecida")

// Store é o subconjunto do repositório usado na coleta
type Store interface {
	Upsert(ctx context.Context, c models.Candidate) (models.ProductRef, error)
}

// Metrics recebe as medições da coleta
type Metrics interface {
	ObserveFragment(source, result string)
	ObserveStored(inserted bool)
	ObserveIngest(source string, elapsed time.Duration)
}

// Summary resume uma coleta
type Summary struct {
	Fetched  int      `json:"fetched"`
	Skipped  int      `json:"skipped"`
	Rejected int      `json:"rejected"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Dropped  int      `json:"dropped"`
	Failed   []string `json:"failed_sources,omitempty"`
}

func (s *Summary) add(o Summary) {
	s.Fetched += o.Fetched
	s.Skipped += o.Skipped
	s.Rejected += o.Rejected
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Dropped += o.Dropped
	s.Failed = append(s.Failed, o.Failed...)
}

// Ingestor liga as fontes ao repositório
type Ingestor struct {
	registry   *scraper.Registry
	store      Store
	thresholds models.Thresholds
	metrics    Metrics
	log        logger.Logger
	newRetry   func() backoff.BackOff
}

// New cria o Ingestor. metrics pode ser nil.
func New(registry *scraper.Registry, store Store, thresholds models.Thresholds, metrics Metrics, log logger.Logger) *Ingestor {
	return &Ingestor{
		registry:   registry,
		store:      store,
		thresholds: thresholds,
		metrics:    metrics,
		log:        log.With(logger.String("componente", "coleta")),
		newRetry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return backoff.WithMaxRetries(b, 5)
		},
	}
}

// Run coleta todas as fontes registradas. Falha de uma fonte não interrompe as outras;
// só o cancelamento do contexto encerra a coleta com erro.
func (in *Ingestor) Run(ctx context.Context) (Summary, error) {
	var total Summary
	for _, src := range in.registry.Sources() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		total.add(in.runSource(ctx, src))
	}

	in.log.Info("coleta concluída",
		logger.Int("fragmentos", total.Fetched),
		logger.Int("inseridos", total.Inserted),
		logger.Int("atualizados", total.Updated),
		logger.Int("ignorados", total.Skipped),
		logger.Int("rejeitados", total.Rejected),
		logger.Int("descartados", total.Dropped),
		logger.Strings("fontes_com_erro", total.Failed),
	)
	return total, ctx.Err()
}

// RunSource coleta apenas a fonte com o nome informado
func (in *Ingestor) RunSource(ctx context.Context, name string) (Summary, error) {
	src := in.registry.Find(name)
	if src == nil {
		return Summary{}, fmt.Errorf("%w: %s (disponíveis: %v)", ErrUnknownSource, name, in.registry.Names())
	}
	sum := in.runSource(ctx, src)
	return sum, ctx.Err()
}

func (in *Ingestor) runSource(ctx context.Context, src scraper.Source) Summary {
	var sum Summary
	start := time.Now()
	log := in.log.With(logger.String("fonte", src.Name()))

	fragments, err := src.Fetch(ctx)
	if in.metrics != nil {
		in.metrics.ObserveIngest(src.Name(), time.Since(start))
	}
	if err != nil {
		log.Error("erro ao buscar listagens", logger.Error(err))
		sum.Failed = append(sum.Failed, src.Name())
		// fragmentos parciais ainda são processados
	}
	sum.Fetched = len(fragments)

	for _, f := range fragments {
		if ctx.Err() != nil {
			break
		}
		result := in.Process(ctx, f)
		switch result {
		case ResultSkipped:
			sum.Skipped++
		case ResultRejected:
			sum.Rejected++
		case ResultInserted:
			sum.Inserted++
		case ResultUpdated:
			sum.Updated++
		case ResultDropped:
			sum.Dropped++
		}
		if in.metrics != nil {
			in.metrics.ObserveFragment(src.Name(), string(result))
		}
	}

	log.Info("fonte processada",
		logger.Int("fragmentos", sum.Fetched),
		logger.Int("inseridos", sum.Inserted),
		logger.Int("atualizados", sum.Updated),
		logger.Duration("duracao", time.Since(start)),
	)
	return sum
}

// Result é o destino de um fragmento na coleta
type Result string

const (
	ResultSkipped  Result = "skipped"
	ResultRejected Result = "rejected"
	ResultInserted Result = "inserted"
	ResultUpdated  Result = "updated"
	ResultDropped  Result = "dropped"
)

// Process extrai, filtra e grava um único fragmento
func (in *Ingestor) Process(ctx context.Context, f scraper.Fragment) Result {
	c, err := scraper.Extract(f)
	if err != nil {
		in.log.Debug("fragmento ignorado", logger.String("motivo", err.Error()))
		return ResultSkipped
	}
	if !scraper.Passes(c, in.thresholds) {
		return ResultRejected
	}

	var ref models.ProductRef
	op := func() error {
		var err error
		ref, err = in.store.Upsert(ctx, c)
		if err != nil && !errors.Is(err, database.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		in.log.Debug("conflito ao gravar produto, tentando de novo",
			logger.String("asin", c.ASIN),
			logger.Duration("espera", wait),
			logger.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(in.newRetry(), ctx), notify); err != nil {
		in.log.Warn("produto descartado", logger.String("asin", c.ASIN), logger.Error(err))
		return ResultDropped
	}

	if in.metrics != nil {
		in.metrics.ObserveStored(ref.Inserted)
	}
	if ref.Inserted {
		return ResultInserted
	}
	return ResultUpdated
}
