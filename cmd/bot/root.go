package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bot-ofertas/config"
)

var rootCmd = &cobra.Command{
	Use:   "bot-ofertas",
	Short: "Coleta ofertas da Amazon e distribui nos canais configurados",
	Long: `Coleta as páginas de ofertas da Amazon, guarda os produtos que passam nos filtros
e publica cada oferta no Telegram, Discord, Twitter/X e no resumo diário por e-mail.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(ingestCommand())
	rootCmd.AddCommand(distributeCommand())
}

// Execute roda a linha de comando até receber SIGINT ou SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// setup carrega a configuração e monta os componentes usados pelo comando
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("erro ao carregar configurações: %w", err)
	}
	return newApp(cmd.Context(), cfg)
}
