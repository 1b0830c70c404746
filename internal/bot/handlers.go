package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bot-ofertas/internal/channel"
	"bot-ofertas/internal/distributor"
	"bot-ofertas/internal/logger"
	"bot-ofertas/internal/models"
)

const (
	defaultListSize = 5
	maxListSize     = 20
)

// API é a parte da API do Telegram usada pelos comandos
type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// DealReader dá acesso de leitura às ofertas e aos produtos pendentes
type DealReader interface {
	ListDeals(ctx context.Context, limit int) ([]models.Deal, error)
	SelectPending(ctx context.Context, t models.Thresholds, window time.Duration, limit int) ([]models.Product, error)
	CountPending(ctx context.Context, t models.Thresholds, window time.Duration) (int, error)
}

// Distributor dispara uma passada de distribuição
type Distributor interface {
	Run(ctx context.Context) (distributor.Summary, error)
}

// Commands atende os comandos enviados ao bot
type Commands struct {
	api        API
	store      DealReader
	dist       Distributor
	thresholds models.Thresholds
	window     time.Duration
	chatID     int64
	log        logger.Logger

	wg sync.WaitGroup
}

// NewCommands cria o atendimento de comandos. Só o chat chatID pode usar os
// comandos restritos; com chatID zero, apenas /start e /help respondem.
func NewCommands(api API, store DealReader, dist Distributor, thresholds models.Thresholds, window time.Duration, chatID int64, log logger.Logger) *Commands {
	return &Commands{
		api:        api,
		store:      store,
		dist:       dist,
		thresholds: thresholds,
		window:     window,
		chatID:     chatID,
		log:        log.With(logger.String("componente", "comandos")),
	}
}

// Listen recebe as mensagens do bot até ctx ser cancelado
func (c *Commands) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	c.log.Info("aguardando comandos")
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				c.wg.Wait()
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := update.Message.Chat.ID
			if reply, ok := c.handle(ctx, chatID, update.Message.Text); ok {
				c.reply(chatID, reply)
			}
		}
	}
}

// handle interpreta o comando e devolve a resposta em HTML
func (c *Commands) handle(ctx context.Context, chatID int64, text string) (string, bool) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", false
	}

	command := strings.ToLower(parts[0])
	// Remover @botname se presente
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}
	if !strings.HasPrefix(command, "/") {
		return "", false
	}

	isPublicCommand := command == "/start" || command == "/help"
	if !isPublicCommand && (c.chatID == 0 || chatID != c.chatID) {
		return "Você não está autorizado a usar este bot.", true
	}

	switch command {
	case "/start", "/help":
		return helpText, true
	case "/ofertas":
		return c.handleDeals(ctx, parts[1:]), true
	case "/pendentes":
		return c.handlePending(ctx, parts[1:]), true
	case "/distribuir":
		return c.handleDistribute(ctx, chatID), true
	default:
		return "Comando não reconhecido. Use /help para ver os comandos disponíveis.", true
	}
}

const helpText = `🤖 <b>Bot de Ofertas</b>

<b>Comandos disponíveis:</b>

<b>/ofertas [n]</b> - Últimas ofertas distribuídas e o resultado em cada canal
Exemplo: /ofertas 10

<b>/pendentes [n]</b> - Produtos aguardando a próxima distribuição
Exemplo: /pendentes 5

<b>/distribuir</b> - Executar uma distribuição agora

<b>/help</b> - Mostrar esta mensagem de ajuda
`

func parseLimit(args []string) int {
	if len(args) == 0 {
		return defaultListSize
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return defaultListSize
	}
	return min(n, maxListSize)
}

func (c *Commands) handleDeals(ctx context.Context, args []string) string {
	deals, err := c.store.ListDeals(ctx, parseLimit(args))
	if err != nil {
		c.log.Error("erro ao listar ofertas", logger.Error(err))
		return fmt.Sprintf("❌ Erro ao listar ofertas: %s", escapeHTML(err.Error()))
	}
	if len(deals) == 0 {
		return "📋 Nenhuma oferta distribuída ainda."
	}

	var response strings.Builder
	response.WriteString("📋 <b>Últimas ofertas:</b>\n\n")
	for _, d := range deals {
		if d.Discount > 0 {
			fmt.Fprintf(&response, "🔥 <b>%.0f%% OFF</b> %s\n", d.Discount, escapeHTML(d.Title))
		} else {
			fmt.Fprintf(&response, "📈 %s\n", escapeHTML(d.Title))
		}
		fmt.Fprintf(&response, "💰 %.2f", d.NewPrice)
		if d.OldPrice > d.NewPrice {
			fmt.Fprintf(&response, " (antes %.2f)", d.OldPrice)
		}
		response.WriteString("\n📣")
		for _, o := range d.Channels {
			mark := "❌"
			if o.Delivered {
				mark = "✅"
			}
			fmt.Fprintf(&response, " %s %s", o.Channel, mark)
		}
		fmt.Fprintf(&response, "\n🕐 %s\n", d.CreatedAt.Local().Format("02/01/2006 15:04"))
		fmt.Fprintf(&response, "🔗 %s\n\n", escapeHTML(d.Link))
	}
	return strings.TrimRight(response.String(), "\n")
}

func (c *Commands) handlePending(ctx context.Context, args []string) string {
	total, err := c.store.CountPending(ctx, c.thresholds, c.window)
	if err != nil {
		c.log.Error("erro ao contar pendentes", logger.Error(err))
		return fmt.Sprintf("❌ Erro ao buscar pendentes: %s", escapeHTML(err.Error()))
	}
	if total == 0 {
		return "✅ Nenhum produto aguardando distribuição."
	}

	products, err := c.store.SelectPending(ctx, c.thresholds, c.window, parseLimit(args))
	if err != nil {
		c.log.Error("erro ao buscar pendentes", logger.Error(err))
		return fmt.Sprintf("❌ Erro ao buscar pendentes: %s", escapeHTML(err.Error()))
	}

	var response strings.Builder
	fmt.Fprintf(&response, "⏳ <b>%d produto(s) aguardando distribuição</b>\n\n", total)
	for i, p := range products {
		fmt.Fprintf(&response, "%d. <b>%.0f%%</b> %s - %s\n", i+1, p.Discount, escapeHTML(p.Title), channel.Price(p.Region, p.CurrentPrice))
	}
	return strings.TrimRight(response.String(), "\n")
}

// handleDistribute dispara a passada em segundo plano e avisa o chat quando terminar
func (c *Commands) handleDistribute(ctx context.Context, chatID int64) string {
	if c.dist == nil {
		return "❌ Distribuição indisponível neste modo."
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sum, err := c.dist.Run(ctx)
		switch {
		case errors.Is(err, distributor.ErrPassInProgress):
			c.reply(chatID, "⚠️ Já existe uma distribuição em andamento.")
		case err != nil:
			c.reply(chatID, fmt.Sprintf("❌ Erro na distribuição: %s", escapeHTML(err.Error())))
		default:
			c.reply(chatID, formatSummary(sum))
		}
	}()
	return "⏳ Distribuição iniciada..."
}

func formatSummary(sum distributor.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>Distribuição concluída</b>\n\nSelecionados: %d\nDistribuídos: %d", sum.Selected, sum.Distributed)
	for _, name := range sortedKeys(sum.Delivered, sum.Failed) {
		fmt.Fprintf(&b, "\n%s: %d ✅ %d ❌", name, sum.Delivered[name], sum.Failed[name])
	}
	if sum.Abandoned {
		b.WriteString("\n\n⚠️ Tempo esgotado, os produtos restantes ficam para a próxima passada.")
	}
	return b.String()
}

func sortedKeys(maps ...map[string]int) []string {
	seen := map[string]struct{}{}
	var keys []string
	for _, m := range maps {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// reply envia em HTML e, se o Telegram recusar a formatação, envia o texto puro
func (c *Commands) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := c.api.Send(msg); err != nil {
		c.log.Warn("erro ao enviar resposta com HTML", logger.Error(err))
		msg.ParseMode = ""
		if _, err2 := c.api.Send(msg); err2 != nil {
			c.log.Error("erro ao enviar resposta sem formatação", logger.Error(err2))
		}
	}
}
