// Package scheduler dispara a coleta, a distribuição e o resumo diário nos horários configurados.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bot-ofertas/internal/logger"
)

// JobFunc é uma tarefa agendada
type JobFunc func(ctx context.Context) error

// Scheduler executa tarefas periódicas. Uma execução ainda em andamento faz a
// próxima ser pulada, nunca enfileirada.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	log    logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New cria o agendador. Aceita expressões de 5 campos e descritores como "@every 15m".
func New(log logger.Logger) *Scheduler {
	log = log.With(logger.String("componente", "agendador"))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		parser:  parser,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add agenda uma tarefa. Expressão vazia desativa a tarefa.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.log.Info("tarefa desativada", logger.String("tarefa", name))
		return nil
	}
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("expressão inválida para %s (%q): %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("tarefa %s já agendada", name)
	}
	s.entries[name] = s.cron.Schedule(schedule, s.wrap(name, fn))

	s.log.Info("tarefa agendada",
		logger.String("tarefa", name),
		logger.String("expressao", spec),
	)
	return nil
}

// wrap adapta a tarefa ao cron: registra duração e erros
func (s *Scheduler) wrap(name string, fn JobFunc) cron.Job {
	return cron.FuncJob(func() {
		start := time.Now()
		err := fn(s.ctx)
		switch {
		case err == nil:
			s.log.Info("tarefa concluída", logger.String("tarefa", name), logger.Duration("duracao", time.Since(start)))
		case errors.Is(err, context.Canceled):
			s.log.Warn("tarefa interrompida", logger.String("tarefa", name))
		default:
			s.log.Error("tarefa falhou", logger.String("tarefa", name), logger.Error(err))
		}
	})
}

// Next retorna o próximo disparo da tarefa (zero se não estiver agendada ou o agendador parado)
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start inicia o agendador em segundo plano
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("agendador iniciado", logger.Int("tarefas", len(s.cron.Entries())))
}

// Stop cancela as tarefas em andamento e espera que terminem ou que ctx expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("agendador parado")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tarefas ainda em andamento: %w", ctx.Err())
	}
}

// cronLogger repassa os logs do cron para o logger do bot
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
