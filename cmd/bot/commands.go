package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"bot-ofertas/internal/api"
	"bot-ofertas/internal/bot"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Roda o agendador, a API HTTP e os comandos do Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func ingestCommand() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Executa uma coleta e sai",
		Long: `Busca as listagens das fontes configuradas, extrai os produtos, aplica os filtros
e grava os aprovados. Com --source apenas a fonte informada é coletada.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if source != "" {
				sum, err := a.ingestor.RunSource(cmd.Context(), source)
				if err != nil {
					return err
				}
				return printJSON(sum)
			}
			sum, err := a.ingestor.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(sum)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "nome da fonte (ex.: amazon-us)")
	return cmd
}

func distributeCommand() *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Executa uma passada de distribuição e sai",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.coordinator.Run(cmd.Context())
			if err != nil {
				return err
			}
			if flush && a.digest.Configured() {
				if err := a.digest.Flush(cmd.Context()); err != nil {
					return err
				}
			}
			return printJSON(sum)
		},
	}
	cmd.Flags().BoolVar(&flush, "flush-digest", false, "envia o resumo por e-mail ao final da passada")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serve mantém o processo no ar até ctx ser cancelado
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(a.log)
	if err := sched.Add("coleta", a.cfg.Schedule.Scraping, func(ctx context.Context) error {
		_, err := a.ingestor.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := sched.Add("distribuicao", a.cfg.Schedule.Posting, func(ctx context.Context) error {
		_, err := a.coordinator.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	if a.digest.Configured() {
		if err := sched.Add("resumo-email", a.cfg.Schedule.Digest, a.digest.Flush); err != nil {
			return err
		}
	}
	sched.Start()
	jobs := []string{"coleta", "distribuicao", "resumo-email"}
	for _, job := range jobs {
		if next := sched.Next(job); !next.IsZero() {
			a.log.Info("próximo disparo", logger.String("tarefa", job), logger.Time("em", next))
		}
	}

	checks := map[string]api.Pinger{}
	if a.lock != nil {
		checks["redis"] = a.lock
	}
	handler := api.NewHandler(a.db, a.cfg.Thresholds(), a.cfg.Distribution.FreshnessWindow, checks, a.metrics, a.log).
		WithStatus(a.coordinator, sched, jobs...)
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, a.metrics.Handler(), a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.log.Info("API HTTP iniciada", logger.String("endereco", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	switch {
	case a.telegram == nil || !a.cfg.Telegram.Commands:
	case a.cfg.Telegram.ChatID == 0:
		a.log.Warn("comandos do Telegram desabilitados: TELEGRAM_CHAT_ID não configurado")
	default:
		commands := bot.NewCommands(a.telegram, a.db, a.coordinator, a.cfg.Thresholds(), a.cfg.Distribution.FreshnessWindow, a.cfg.Telegram.ChatID, a.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			commands.Listen(ctx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Encerrando bot...")
	case runErr = <-errCh:
		a.log.Error("erro na API HTTP", logger.Error(runErr))
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("erro ao encerrar a API HTTP", logger.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.log.Warn("agendador não terminou a tempo", logger.Error(err))
	}
	wg.Wait()
	return runErr
}
